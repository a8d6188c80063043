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

const (
	// clippedFractionL2NormClip is the sensitivity of the clipped fraction query.
	// Clip indicators are accumulated shifted by -0.5, so each record contributes
	// either +0.5 or -0.5 and no clipping ever actually occurs.
	clippedFractionL2NormClip = 0.5
	// clipIndicatorShift centers the 0/1 clip indicator at zero.
	clipIndicatorShift = 0.5
)

// AdaptiveClipGlobalState is the global state of a QuantileAdaptiveClipSumQuery.
//
// SumState.Stddev always equals SumState.L2NormClip * NoiseMultiplier.
type AdaptiveClipGlobalState struct {
	NoiseMultiplier         float64
	TargetUnclippedQuantile float64
	LearningRate            float64
	SumState                GaussianSumGlobalState
	ClippedFractionState    GaussianSumGlobalState
}

// AdaptiveClipSampleParams are the per-round parameters of a QuantileAdaptiveClipSumQuery.
type AdaptiveClipSampleParams struct {
	SumParams             GaussianSumParams
	ClippedFractionParams GaussianSumParams
}

// AdaptiveClipSampleState accumulates the clipped records of a round together
// with the sum of their centered clip indicators.
type AdaptiveClipSampleState struct {
	SumState             vector.Vector
	ClippedFractionState float64
}

// QuantileAdaptiveClipSumQuery is a Gaussian sum query whose clipping norm is
// tuned after every round so that a target fraction of records stays
// unclipped.
//
// The fraction of clipped records is itself estimated with a differentially
// private average query, and the clipping norm takes one step of online
// gradient descent on a convex loss whose derivative, the difference between
// the estimated and the target unclipped quantile, lies in [-1, 1]. See
// Thakkar et al., "Differentially Private Learning with Adaptive Clipping"
// (https://arxiv.org/abs/1905.03871).
//
// The query holds no per-round state. Global states must flow linearly from
// one round's GetNoisedResult to the next round's DeriveSampleParams.
type QuantileAdaptiveClipSumQuery struct {
	initialL2NormClip       float64
	noiseMultiplier         float64
	targetUnclippedQuantile float64
	learningRate            float64
	geometricUpdate         bool

	sumQuery             *GaussianSumQuery
	clippedFractionQuery *GaussianAverageQuery
}

// QuantileAdaptiveClipSumQueryOptions contains the options necessary to initialize a
// QuantileAdaptiveClipSumQuery.
type QuantileAdaptiveClipSumQueryOptions struct {
	InitialL2NormClip float64 // Clipping norm of the first round. Required; must be positive.
	// Ratio of the stddev of the noise added to the sum to the clipping norm.
	NoiseMultiplier float64
	// Desired fraction of records that stay unclipped. Must be within [0, 1]; a value of
	// 0.8 looks for a clipping norm such that approximately 20% of the records are clipped.
	TargetUnclippedQuantile float64
	// Maximum change of the clipping norm per round with additive updates. Must be nonnegative.
	LearningRate float64
	// Stddev of the noise added to the clipped count. The sensitivity of the clipped count
	// is 0.5, so about 0.5 is a reasonable rule of thumb.
	ClippedCountStddev float64
	// Expected number of records per round, used to turn the clipped count into a fraction.
	// Required; must be positive.
	ExpectedNumRecords float64
	// GeometricUpdate selects multiplicative instead of additive clipping norm updates.
	GeometricUpdate bool
	Noise           noise.Noise // Defaults to noise.Gaussian().
}

// NewQuantileAdaptiveClipSumQuery returns a new QuantileAdaptiveClipSumQuery.
func NewQuantileAdaptiveClipSumQuery(opt *QuantileAdaptiveClipSumQueryOptions) (*QuantileAdaptiveClipSumQuery, error) {
	if opt == nil {
		opt = &QuantileAdaptiveClipSumQueryOptions{}
	}
	if err := checkQuantileAdaptiveClipOptions(opt); err != nil {
		return nil, fmt.Errorf("NewQuantileAdaptiveClipSumQuery: %w", err)
	}
	n := opt.Noise
	if n == nil {
		n = noise.Gaussian()
	}
	sumQuery, err := NewGaussianSumQuery(&GaussianSumQueryOptions{
		L2NormClip: opt.InitialL2NormClip,
		Stddev:     opt.InitialL2NormClip * opt.NoiseMultiplier,
		Noise:      n,
	})
	if err != nil {
		return nil, fmt.Errorf("NewQuantileAdaptiveClipSumQuery: %w", err)
	}
	clippedFractionQuery, err := newClippedFractionQuery(opt.ClippedCountStddev, opt.ExpectedNumRecords, n)
	if err != nil {
		return nil, fmt.Errorf("NewQuantileAdaptiveClipSumQuery: %w", err)
	}
	return &QuantileAdaptiveClipSumQuery{
		initialL2NormClip:       opt.InitialL2NormClip,
		noiseMultiplier:         opt.NoiseMultiplier,
		targetUnclippedQuantile: opt.TargetUnclippedQuantile,
		learningRate:            opt.LearningRate,
		geometricUpdate:         opt.GeometricUpdate,
		sumQuery:                sumQuery,
		clippedFractionQuery:    clippedFractionQuery,
	}, nil
}

func checkQuantileAdaptiveClipOptions(opt *QuantileAdaptiveClipSumQueryOptions) error {
	if err := checks.CheckL2NormClipStrict(opt.InitialL2NormClip, "InitialL2NormClip"); err != nil {
		return err
	}
	if err := checks.CheckNoiseMultiplier(opt.NoiseMultiplier); err != nil {
		return err
	}
	if err := checks.CheckTargetUnclippedQuantile(opt.TargetUnclippedQuantile); err != nil {
		return err
	}
	if err := checks.CheckLearningRate(opt.LearningRate); err != nil {
		return err
	}
	if err := checks.CheckStddev(opt.ClippedCountStddev, "ClippedCountStddev"); err != nil {
		return err
	}
	return checks.CheckExpectedNumRecords(opt.ExpectedNumRecords)
}

// newClippedFractionQuery returns the average query estimating the fraction of
// clipped records, offset by -0.5, from the centered clip indicators.
func newClippedFractionQuery(clippedCountStddev, expectedNumRecords float64, n noise.Noise) (*GaussianAverageQuery, error) {
	return NewGaussianAverageQuery(&GaussianAverageQueryOptions{
		L2NormClip:  clippedFractionL2NormClip,
		SumStddev:   clippedCountStddev,
		Denominator: expectedNumRecords,
		Noise:       n,
	})
}

// SetLedger sets the ledger of both the sum and the clipped fraction query, so
// that every round records two sum queries.
func (q *QuantileAdaptiveClipSumQuery) SetLedger(ledger Ledger) {
	q.sumQuery.SetLedger(ledger)
	q.clippedFractionQuery.SetLedger(ledger)
}

// InitialGlobalState returns the global state of the first round.
func (q *QuantileAdaptiveClipSumQuery) InitialGlobalState() AdaptiveClipGlobalState {
	return AdaptiveClipGlobalState{
		NoiseMultiplier:         q.noiseMultiplier,
		TargetUnclippedQuantile: q.targetUnclippedQuantile,
		LearningRate:            q.learningRate,
		SumState:                q.sumQuery.MakeGlobalState(q.initialL2NormClip, q.initialL2NormClip*q.noiseMultiplier),
		ClippedFractionState:    q.clippedFractionQuery.InitialGlobalState(),
	}
}

// DeriveSampleParams returns the parameters of both sub-queries for the round.
func (q *QuantileAdaptiveClipSumQuery) DeriveSampleParams(globalState AdaptiveClipGlobalState) AdaptiveClipSampleParams {
	return AdaptiveClipSampleParams{
		SumParams:             q.sumQuery.DeriveSampleParams(globalState.SumState),
		ClippedFractionParams: q.clippedFractionQuery.DeriveSampleParams(globalState.ClippedFractionState),
	}
}

// InitialSampleState returns a zero sum shaped like template and a zero clipped count.
func (q *QuantileAdaptiveClipSumQuery) InitialSampleState(template vector.Vector) AdaptiveClipSampleState {
	return AdaptiveClipSampleState{
		SumState:             q.sumQuery.InitialSampleState(template),
		ClippedFractionState: 0,
	}
}

// PreprocessRecord clips record and computes its centered clip indicator:
// +0.5 if the norm of record is at least the clipping norm, -0.5 otherwise.
func (q *QuantileAdaptiveClipSumQuery) PreprocessRecord(params AdaptiveClipSampleParams, record vector.Vector) (AdaptiveClipSampleState, error) {
	clipped, norm := q.sumQuery.PreprocessRecordWithNorm(params.SumParams, record)
	indicator, err := q.clippedFractionQuery.PreprocessRecord(params.ClippedFractionParams,
		vector.Vector{clipIndicator(norm, params.SumParams.L2NormClip) - clipIndicatorShift})
	if err != nil {
		return AdaptiveClipSampleState{}, fmt.Errorf("QuantileAdaptiveClipSumQuery.PreprocessRecord: %w", err)
	}
	return AdaptiveClipSampleState{SumState: clipped, ClippedFractionState: indicator[0]}, nil
}

// clipIndicator returns 1 if a record of the given norm counts as clipped
// under l2NormClip and 0 otherwise. A norm equal to the clipping norm counts as
// clipped.
func clipIndicator(norm, l2NormClip float64) float64 {
	if norm >= l2NormClip {
		return 1
	}
	return 0
}

// AccumulatePreprocessedRecord adds the output of PreprocessRecord to sampleState.
func (q *QuantileAdaptiveClipSumQuery) AccumulatePreprocessedRecord(sampleState, preprocessedRecord AdaptiveClipSampleState) (AdaptiveClipSampleState, error) {
	return q.MergeSampleStates(sampleState, preprocessedRecord)
}

// AccumulateRecord clips record and adds it, with its clip indicator, to sampleState.
func (q *QuantileAdaptiveClipSumQuery) AccumulateRecord(params AdaptiveClipSampleParams, sampleState AdaptiveClipSampleState, record vector.Vector) (AdaptiveClipSampleState, error) {
	preprocessed, err := q.PreprocessRecord(params, record)
	if err != nil {
		return AdaptiveClipSampleState{}, err
	}
	return q.AccumulatePreprocessedRecord(sampleState, preprocessed)
}

// MergeSampleStates adds the sums and the clipped counts of both sample states.
func (q *QuantileAdaptiveClipSumQuery) MergeSampleStates(sampleState1, sampleState2 AdaptiveClipSampleState) (AdaptiveClipSampleState, error) {
	sum, err := q.sumQuery.MergeSampleStates(sampleState1.SumState, sampleState2.SumState)
	if err != nil {
		return AdaptiveClipSampleState{}, fmt.Errorf("QuantileAdaptiveClipSumQuery.MergeSampleStates: %w", err)
	}
	return AdaptiveClipSampleState{
		SumState:             sum,
		ClippedFractionState: sampleState1.ClippedFractionState + sampleState2.ClippedFractionState,
	}, nil
}

// GetNoisedResult returns the noised sum of the round and the global state of
// the next round, whose clipping norm has moved toward the target quantile.
func (q *QuantileAdaptiveClipSumQuery) GetNoisedResult(sampleState AdaptiveClipSampleState, globalState AdaptiveClipGlobalState) (vector.Vector, AdaptiveClipGlobalState, error) {
	// The sum query's own global state is replaced below.
	noisedVectors, _, err := q.sumQuery.GetNoisedResult(sampleState.SumState, globalState.SumState)
	if err != nil {
		return nil, globalState, fmt.Errorf("QuantileAdaptiveClipSumQuery.GetNoisedResult: %w", err)
	}
	clippedFraction, newClippedFractionState, err := q.clippedFractionQuery.GetNoisedResult(
		vector.Vector{sampleState.ClippedFractionState}, globalState.ClippedFractionState)
	if err != nil {
		return nil, globalState, fmt.Errorf("QuantileAdaptiveClipSumQuery.GetNoisedResult: %w", err)
	}

	unclippedQuantile := unclippedQuantileFromEstimate(clippedFraction[0])
	lossGrad := lossGradient(unclippedQuantile, globalState.TargetUnclippedQuantile)
	update := globalState.LearningRate * lossGrad
	oldL2NormClip := globalState.SumState.L2NormClip
	newL2NormClip := nextL2NormClip(oldL2NormClip, update, q.geometricUpdate)
	log.V(1).Infof("QuantileAdaptiveClipSumQuery: unclipped quantile %f (target %f), l2NormClip %f -> %f",
		unclippedQuantile, globalState.TargetUnclippedQuantile, oldL2NormClip, newL2NormClip)
	if newL2NormClip == 0 && oldL2NormClip > 0 {
		log.Warningf("QuantileAdaptiveClipSumQuery: additive update %f floored the clipping norm at 0", update)
	}

	newGlobalState := globalState
	newGlobalState.SumState = q.sumQuery.MakeGlobalState(newL2NormClip, newL2NormClip*globalState.NoiseMultiplier)
	newGlobalState.ClippedFractionState = newClippedFractionState
	return noisedVectors, newGlobalState, nil
}

// unclippedQuantileFromEstimate undoes the -0.5 shift of the noisy clipped
// fraction and returns the fraction of unclipped records, clamped to [0, 1]
// since noise can push the raw estimate out of range.
func unclippedQuantileFromEstimate(clippedFractionEstimate float64) float64 {
	clippedQuantile := clippedFractionEstimate + clipIndicatorShift
	return clampFloat64(1.0-clippedQuantile, 0.0, 1.0)
}

// lossGradient is the derivative of the quantile loss with respect to the
// clipping norm. It lies in [-1, 1] and is zero exactly at the target.
func lossGradient(unclippedQuantile, targetUnclippedQuantile float64) float64 {
	return unclippedQuantile - targetUnclippedQuantile
}

// nextL2NormClip applies one update step to l2NormClip. Geometric steps keep a
// positive clipping norm positive; additive steps are floored at 0.
func nextL2NormClip(l2NormClip, update float64, geometric bool) float64 {
	if geometric {
		next := l2NormClip * math.Exp(-update)
		if next == 0 && l2NormClip > 0 {
			// math.Exp underflowed.
			return math.SmallestNonzeroFloat64
		}
		return next
	}
	return math.Max(0.0, l2NormClip-update)
}

var _ DPQuery[AdaptiveClipGlobalState, AdaptiveClipSampleParams, AdaptiveClipSampleState] = (*QuantileAdaptiveClipSumQuery)(nil)
