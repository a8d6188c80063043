//
// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package dpquery contains differentially private queries that aggregate
// numeric-vector records in rounds.
//
// A query is driven by an explicit state protocol. A global state persists
// across rounds and is replaced, never mutated, at the end of each round:
//
//	globalState := q.InitialGlobalState()
//	for each round {
//		params := q.DeriveSampleParams(globalState)
//		sampleState := q.InitialSampleState(template)
//		for each record {
//			sampleState, err = q.AccumulateRecord(params, sampleState, record)
//		}
//		result, globalState, err = q.GetNoisedResult(sampleState, globalState)
//	}
//
// Sample states of the same round can be merged in any order, which allows
// records to be accumulated concurrently (see AccumulateParallel and Round).
package dpquery

import "github.com/google/differential-privacy/adaptiveclip/vector"

// Ledger records the privacy-consuming operations performed by queries, so
// that their cumulative privacy cost can be computed elsewhere.
type Ledger interface {
	// RecordSumQuery records a Gaussian sum query over records clipped to
	// l2NormClip with noise of standard deviation stddev.
	RecordSumQuery(l2NormClip, stddev float64) error
}

// DPQuery is a differentially private query over vector.Vector records with
// global state G, per-round sample parameters P and sample state S.
type DPQuery[G, P, S any] interface {
	// SetLedger supplies the ledger notified of every noise-adding operation.
	SetLedger(ledger Ledger)
	// InitialGlobalState returns the global state before the first round.
	InitialGlobalState() G
	// DeriveSampleParams returns the read-only parameters of a round.
	DeriveSampleParams(globalState G) P
	// InitialSampleState returns an empty accumulator shaped like template.
	InitialSampleState(template vector.Vector) S
	// PreprocessRecord turns a record into a sample state holding only that record.
	PreprocessRecord(params P, record vector.Vector) (S, error)
	// AccumulatePreprocessedRecord adds the output of PreprocessRecord to
	// sampleState. The storage of sampleState may be reused.
	AccumulatePreprocessedRecord(sampleState, preprocessedRecord S) (S, error)
	// AccumulateRecord adds record to sampleState. The storage of sampleState
	// may be reused; callers must continue with the returned state.
	AccumulateRecord(params P, sampleState S, record vector.Vector) (S, error)
	// MergeSampleStates combines two partial accumulators of the same round.
	// The operation is associative and commutative. The storage of
	// sampleState1 may be reused; sampleState2 is left unchanged.
	MergeSampleStates(sampleState1, sampleState2 S) (S, error)
	// GetNoisedResult returns the noised aggregate of a round and the global
	// state of the next round.
	GetNoisedResult(sampleState S, globalState G) (vector.Vector, G, error)
}
