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

package dpquery

import (
	"fmt"

	"github.com/google/differential-privacy/adaptiveclip/checks"
	"github.com/google/differential-privacy/adaptiveclip/vector"
)

// NormalizedQuery turns a sum query into an average query by dividing the
// noised result of its numerator by a fixed denominator.
//
// The denominator is a known constant, e.g., the expected number of records
// per round, rather than a noisy count: estimating it from the data would add
// variance. NormalizedQuery has no state of its own; its global state, sample
// parameters and sample state are those of the numerator.
type NormalizedQuery[G, P, S any] struct {
	numerator   DPQuery[G, P, S]
	denominator float64
}

// NewNormalizedQuery returns a NormalizedQuery wrapping numerator.
func NewNormalizedQuery[G, P, S any](numerator DPQuery[G, P, S], denominator float64) (*NormalizedQuery[G, P, S], error) {
	if numerator == nil {
		return nil, fmt.Errorf("NewNormalizedQuery: numerator must be set")
	}
	if err := checks.CheckDenominator(denominator); err != nil {
		return nil, fmt.Errorf("NewNormalizedQuery: %w", err)
	}
	return &NormalizedQuery[G, P, S]{numerator: numerator, denominator: denominator}, nil
}

// SetLedger forwards ledger to the numerator.
func (q *NormalizedQuery[G, P, S]) SetLedger(ledger Ledger) {
	q.numerator.SetLedger(ledger)
}

// InitialGlobalState returns the numerator's initial global state.
func (q *NormalizedQuery[G, P, S]) InitialGlobalState() G {
	return q.numerator.InitialGlobalState()
}

// DeriveSampleParams returns the numerator's sample parameters.
func (q *NormalizedQuery[G, P, S]) DeriveSampleParams(globalState G) P {
	return q.numerator.DeriveSampleParams(globalState)
}

// InitialSampleState returns the numerator's initial sample state.
func (q *NormalizedQuery[G, P, S]) InitialSampleState(template vector.Vector) S {
	return q.numerator.InitialSampleState(template)
}

// PreprocessRecord preprocesses record with the numerator.
func (q *NormalizedQuery[G, P, S]) PreprocessRecord(params P, record vector.Vector) (S, error) {
	return q.numerator.PreprocessRecord(params, record)
}

// AccumulatePreprocessedRecord accumulates a preprocessed record with the numerator.
func (q *NormalizedQuery[G, P, S]) AccumulatePreprocessedRecord(sampleState, preprocessedRecord S) (S, error) {
	return q.numerator.AccumulatePreprocessedRecord(sampleState, preprocessedRecord)
}

// AccumulateRecord accumulates record with the numerator.
func (q *NormalizedQuery[G, P, S]) AccumulateRecord(params P, sampleState S, record vector.Vector) (S, error) {
	return q.numerator.AccumulateRecord(params, sampleState, record)
}

// MergeSampleStates merges sample states with the numerator.
func (q *NormalizedQuery[G, P, S]) MergeSampleStates(sampleState1, sampleState2 S) (S, error) {
	return q.numerator.MergeSampleStates(sampleState1, sampleState2)
}

// GetNoisedResult returns the numerator's noised result divided element-wise
// by the denominator, together with the numerator's next global state.
func (q *NormalizedQuery[G, P, S]) GetNoisedResult(sampleState S, globalState G) (vector.Vector, G, error) {
	noisedSum, newGlobalState, err := q.numerator.GetNoisedResult(sampleState, globalState)
	if err != nil {
		return nil, globalState, err
	}
	return vector.Divide(noisedSum, q.denominator), newGlobalState, nil
}
