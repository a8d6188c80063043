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
	"math"

	log "github.com/golang/glog"
	"github.com/google/differential-privacy/adaptiveclip/checks"
	"github.com/google/differential-privacy/adaptiveclip/noise"
	"github.com/google/differential-privacy/adaptiveclip/vector"
)

// GaussianSumGlobalState is the global state of a GaussianSumQuery.
type GaussianSumGlobalState struct {
	L2NormClip float64
	Stddev     float64
}

// GaussianSumParams are the per-round parameters of a GaussianSumQuery.
type GaussianSumParams struct {
	L2NormClip float64
	Stddev     float64
}

// GaussianSumQuery clips each record to an L2 norm bound, sums the clipped
// records and adds independent Gaussian noise to every coordinate of the sum.
//
// The noised sum is an unbiased estimate of the sum of clipped records, with
// per-coordinate variance Stddev².
type GaussianSumQuery struct {
	l2NormClip float64
	stddev     float64
	noise      noise.Noise
	ledger     Ledger
}

// GaussianSumQueryOptions contains the options necessary to initialize a GaussianSumQuery.
type GaussianSumQueryOptions struct {
	L2NormClip float64     // Clipping norm for each record. Must be nonnegative.
	Stddev     float64     // Standard deviation of the noise added to the sum. Must be nonnegative.
	Noise      noise.Noise // Defaults to noise.Gaussian().
}

// NewGaussianSumQuery returns a new GaussianSumQuery.
func NewGaussianSumQuery(opt *GaussianSumQueryOptions) (*GaussianSumQuery, error) {
	if opt == nil {
		opt = &GaussianSumQueryOptions{}
	}
	if err := checks.CheckL2NormClip(opt.L2NormClip); err != nil {
		return nil, fmt.Errorf("NewGaussianSumQuery: %w", err)
	}
	if err := checks.CheckStddev(opt.Stddev); err != nil {
		return nil, fmt.Errorf("NewGaussianSumQuery: %w", err)
	}
	n := opt.Noise
	if n == nil {
		n = noise.Gaussian()
	}
	return &GaussianSumQuery{
		l2NormClip: opt.L2NormClip,
		stddev:     opt.Stddev,
		noise:      n,
	}, nil
}

// SetLedger sets the ledger notified by GetNoisedResult.
func (q *GaussianSumQuery) SetLedger(ledger Ledger) {
	q.ledger = ledger
}

// MakeGlobalState returns a global state with the given clipping norm and noise stddev.
func (q *GaussianSumQuery) MakeGlobalState(l2NormClip, stddev float64) GaussianSumGlobalState {
	return GaussianSumGlobalState{L2NormClip: l2NormClip, Stddev: stddev}
}

// InitialGlobalState returns the global state built from the query's options.
func (q *GaussianSumQuery) InitialGlobalState() GaussianSumGlobalState {
	return q.MakeGlobalState(q.l2NormClip, q.stddev)
}

// DeriveSampleParams returns the clipping norm and stddev of the round.
func (q *GaussianSumQuery) DeriveSampleParams(globalState GaussianSumGlobalState) GaussianSumParams {
	return GaussianSumParams{L2NormClip: globalState.L2NormClip, Stddev: globalState.Stddev}
}

// InitialSampleState returns a zero vector with the dimension of template.
func (q *GaussianSumQuery) InitialSampleState(template vector.Vector) vector.Vector {
	return vector.ZerosLike(template)
}

// PreprocessRecordWithNorm clips record to params.L2NormClip and also returns
// the norm of record before clipping. record is not modified.
//
// A record with a NaN or infinite coordinate cannot be scaled into the bound:
// it is replaced by a zero vector and its norm is reported as +Inf, so that it
// counts as clipped.
func (q *GaussianSumQuery) PreprocessRecordWithNorm(params GaussianSumParams, record vector.Vector) (vector.Vector, float64) {
	clipped, norm := vector.ClipToL2Norm(record, params.L2NormClip)
	if math.IsNaN(norm) || math.IsInf(norm, 0) {
		log.Warningf("GaussianSumQuery: record has L2 norm %f, replacing it with a zero vector", norm)
		return vector.ZerosLike(record), math.Inf(1)
	}
	return clipped, norm
}

// PreprocessRecord clips record to params.L2NormClip.
func (q *GaussianSumQuery) PreprocessRecord(params GaussianSumParams, record vector.Vector) (vector.Vector, error) {
	clipped, _ := q.PreprocessRecordWithNorm(params, record)
	return clipped, nil
}

// AccumulatePreprocessedRecord adds an already clipped record to sampleState in place.
func (q *GaussianSumQuery) AccumulatePreprocessedRecord(sampleState, preprocessedRecord vector.Vector) (vector.Vector, error) {
	if err := vector.AddTo(sampleState, preprocessedRecord); err != nil {
		return nil, fmt.Errorf("GaussianSumQuery.AccumulatePreprocessedRecord: %w", err)
	}
	return sampleState, nil
}

// AccumulateRecord adds the clipped record to sampleState in place.
func (q *GaussianSumQuery) AccumulateRecord(params GaussianSumParams, sampleState, record vector.Vector) (vector.Vector, error) {
	clipped, _ := q.PreprocessRecordWithNorm(params, record)
	if err := vector.AddTo(sampleState, clipped); err != nil {
		return nil, fmt.Errorf("GaussianSumQuery.AccumulateRecord: %w", err)
	}
	return sampleState, nil
}

// MergeSampleStates adds sampleState2 to sampleState1 in place.
func (q *GaussianSumQuery) MergeSampleStates(sampleState1, sampleState2 vector.Vector) (vector.Vector, error) {
	if err := vector.AddTo(sampleState1, sampleState2); err != nil {
		return nil, fmt.Errorf("GaussianSumQuery.MergeSampleStates: %w", err)
	}
	return sampleState1, nil
}

// GetNoisedResult records the query in the ledger, if any, and returns the
// accumulated sum with Gaussian noise of globalState.Stddev added to each
// coordinate. The global state is returned unchanged.
func (q *GaussianSumQuery) GetNoisedResult(sampleState vector.Vector, globalState GaussianSumGlobalState) (vector.Vector, GaussianSumGlobalState, error) {
	if q.ledger != nil {
		if err := q.ledger.RecordSumQuery(globalState.L2NormClip, globalState.Stddev); err != nil {
			return nil, globalState, fmt.Errorf("GaussianSumQuery.GetNoisedResult: couldn't record query: %w", err)
		}
	}
	noised := make(vector.Vector, len(sampleState))
	for i, x := range sampleState {
		var err error
		if noised[i], err = q.noise.AddNoiseFloat64(x, globalState.Stddev); err != nil {
			return nil, globalState, fmt.Errorf("GaussianSumQuery.GetNoisedResult: %w", err)
		}
	}
	return noised, globalState, nil
}

// GaussianAverageQuery divides the noised sum of a GaussianSumQuery by a fixed
// denominator.
type GaussianAverageQuery = NormalizedQuery[GaussianSumGlobalState, GaussianSumParams, vector.Vector]

// GaussianAverageQueryOptions contains the options necessary to initialize a GaussianAverageQuery.
type GaussianAverageQueryOptions struct {
	L2NormClip  float64     // Clipping norm for each record. Must be nonnegative.
	SumStddev   float64     // Standard deviation of the noise added to the sum. Must be nonnegative.
	Denominator float64     // Normalization constant applied after noise is added. Must be positive.
	Noise       noise.Noise // Defaults to noise.Gaussian().
}

// NewGaussianAverageQuery returns a new GaussianAverageQuery.
func NewGaussianAverageQuery(opt *GaussianAverageQueryOptions) (*GaussianAverageQuery, error) {
	if opt == nil {
		opt = &GaussianAverageQueryOptions{}
	}
	sum, err := NewGaussianSumQuery(&GaussianSumQueryOptions{
		L2NormClip: opt.L2NormClip,
		Stddev:     opt.SumStddev,
		Noise:      opt.Noise,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGaussianAverageQuery: %w", err)
	}
	avg, err := NewNormalizedQuery[GaussianSumGlobalState, GaussianSumParams, vector.Vector](sum, opt.Denominator)
	if err != nil {
		return nil, fmt.Errorf("NewGaussianAverageQuery: %w", err)
	}
	return avg, nil
}

var _ DPQuery[GaussianSumGlobalState, GaussianSumParams, vector.Vector] = (*GaussianSumQuery)(nil)
