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
	"context"
	"fmt"
	"reflect"

	"github.com/google/differential-privacy/adaptiveclip/checks"
	"github.com/google/differential-privacy/adaptiveclip/vector"
	"golang.org/x/sync/errgroup"
)

// Round accumulates the records of a single round of a DPQuery and computes
// its noised result exactly once.
//
// A Round never modifies the global state it was created from: abandoning a
// Round before calling Result leaves the query's progress untouched.
//
// Not thread-safe. Use AddParallel, or Merge Rounds built from the same global
// state, to accumulate concurrently.
type Round[G, P, S any] struct {
	query       DPQuery[G, P, S]
	globalState G
	params      P
	template    vector.Vector
	sampleState S
	numRecords  int64
	state       aggregationState
}

// NewRound returns an empty Round of query for globalState. template gives
// the shape of the records.
func NewRound[G, P, S any](query DPQuery[G, P, S], globalState G, template vector.Vector) *Round[G, P, S] {
	return &Round[G, P, S]{
		query:       query,
		globalState: globalState,
		params:      query.DeriveSampleParams(globalState),
		template:    vector.ZerosLike(template),
		sampleState: query.InitialSampleState(template),
		state:       defaultState,
	}
}

// NumRecords returns the number of records added so far, including merged ones.
func (r *Round[G, P, S]) NumRecords() int64 {
	return r.numRecords
}

// Add accumulates record into the round.
func (r *Round[G, P, S]) Add(record vector.Vector) error {
	if r.state != defaultState {
		return fmt.Errorf("Round cannot be amended: %v", r.state.errorMessage())
	}
	s, err := r.query.AccumulateRecord(r.params, r.sampleState, record)
	if err != nil {
		return fmt.Errorf("Round.Add: %w", err)
	}
	r.sampleState = s
	r.numRecords++
	return nil
}

// AddParallel accumulates records into the round using up to workers goroutines.
func (r *Round[G, P, S]) AddParallel(ctx context.Context, records []vector.Vector, workers int) error {
	if r.state != defaultState {
		return fmt.Errorf("Round cannot be amended: %v", r.state.errorMessage())
	}
	partial, err := AccumulateParallel(ctx, r.query, r.params, r.template, records, workers)
	if err != nil {
		return fmt.Errorf("Round.AddParallel: %w", err)
	}
	s, err := r.query.MergeSampleStates(r.sampleState, partial)
	if err != nil {
		return fmt.Errorf("Round.AddParallel: %w", err)
	}
	r.sampleState = s
	r.numRecords += int64(len(records))
	return nil
}

// Merge merges r2 into r (i.e., adds to r all records that were added to r2).
// r2 is consumed by this operation: r2 may not be used after it is merged
// into r.
func (r *Round[G, P, S]) Merge(r2 *Round[G, P, S]) error {
	if err := checkMergeRound(r, r2); err != nil {
		return err
	}
	s, err := r.query.MergeSampleStates(r.sampleState, r2.sampleState)
	if err != nil {
		return fmt.Errorf("Round.Merge: %w", err)
	}
	r.sampleState = s
	r.numRecords += r2.numRecords
	r2.state = merged
	return nil
}

func checkMergeRound[G, P, S any](r1, r2 *Round[G, P, S]) error {
	if r1.state != defaultState {
		return fmt.Errorf("checkMergeRound: r1 cannot be merged with another Round: %v", r1.state.errorMessage())
	}
	if r2.state != defaultState {
		return fmt.Errorf("checkMergeRound: r2 cannot be merged with another Round: %v", r2.state.errorMessage())
	}
	if r1.query != r2.query || !reflect.DeepEqual(r1.params, r2.params) || len(r1.template) != len(r2.template) {
		return fmt.Errorf("checkMergeRound: r1 and r2 are not compatible")
	}
	return nil
}

// Result returns the noised result of the round and the global state of the
// next round. The method can be called only once.
func (r *Round[G, P, S]) Result() (vector.Vector, G, error) {
	if r.state != defaultState {
		return nil, r.globalState, fmt.Errorf("Round's noised result cannot be computed: %v", r.state.errorMessage())
	}
	r.state = resultReturned
	return r.query.GetNoisedResult(r.sampleState, r.globalState)
}

// AccumulateParallel accumulates records into a fresh sample state of query,
// splitting them into contiguous chunks processed by up to workers goroutines.
// The partial sample states are merged in chunk order.
//
// The query's AccumulateRecord must be safe for concurrent use, as it is for
// the queries of this package.
func AccumulateParallel[G, P, S any](ctx context.Context, query DPQuery[G, P, S], params P, template vector.Vector, records []vector.Vector, workers int) (S, error) {
	var zero S
	if err := checks.CheckWorkers(workers); err != nil {
		return zero, fmt.Errorf("AccumulateParallel: %w", err)
	}
	workers = max(1, min(workers, len(records)))
	chunkSize := (len(records) + workers - 1) / workers

	partials := make([]S, workers)
	g, gCtx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		lo := min(w*chunkSize, len(records))
		hi := min(lo+chunkSize, len(records))
		g.Go(func() error {
			s := query.InitialSampleState(template)
			for _, record := range records[lo:hi] {
				if err := gCtx.Err(); err != nil {
					return err
				}
				var err error
				if s, err = query.AccumulateRecord(params, s, record); err != nil {
					return err
				}
			}
			partials[w] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return zero, fmt.Errorf("AccumulateParallel: %w", err)
	}

	result := partials[0]
	for _, p := range partials[1:] {
		var err error
		if result, err = query.MergeSampleStates(result, p); err != nil {
			return zero, fmt.Errorf("AccumulateParallel: %w", err)
		}
	}
	return result, nil
}

// RunRound runs one complete round of query: it derives the sample parameters
// from globalState, accumulates records with up to workers goroutines and
// returns the noised result together with the next global state. On error the
// input globalState is returned unchanged.
func RunRound[G, P, S any](ctx context.Context, query DPQuery[G, P, S], globalState G, template vector.Vector, records []vector.Vector, workers int) (vector.Vector, G, error) {
	r := NewRound(query, globalState, template)
	if err := r.AddParallel(ctx, records, workers); err != nil {
		return nil, globalState, err
	}
	result, next, err := r.Result()
	if err != nil {
		return nil, globalState, err
	}
	return result, next, nil
}
