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

	"github.com/google/differential-privacy/adaptiveclip/noise"
)

// QuantileAdaptiveClipAverageQuery is an average query with adaptive clipping:
// a QuantileAdaptiveClipSumQuery whose noised sum is divided by a fixed
// denominator. Its global state is that of the wrapped sum query.
type QuantileAdaptiveClipAverageQuery = NormalizedQuery[AdaptiveClipGlobalState, AdaptiveClipSampleParams, AdaptiveClipSampleState]

// QuantileAdaptiveClipAverageQueryOptions contains the options necessary to initialize a
// QuantileAdaptiveClipAverageQuery. See QuantileAdaptiveClipSumQueryOptions for
// the options shared with the sum query.
type QuantileAdaptiveClipAverageQueryOptions struct {
	InitialL2NormClip float64
	NoiseMultiplier   float64
	// Normalization constant applied after noise is added to the sum, typically the
	// expected number of records per round. Required; must be positive.
	Denominator             float64
	TargetUnclippedQuantile float64
	LearningRate            float64
	ClippedCountStddev      float64
	ExpectedNumRecords      float64
	GeometricUpdate         bool
	Noise                   noise.Noise
}

// NewQuantileAdaptiveClipAverageQuery returns a new QuantileAdaptiveClipAverageQuery.
func NewQuantileAdaptiveClipAverageQuery(opt *QuantileAdaptiveClipAverageQueryOptions) (*QuantileAdaptiveClipAverageQuery, error) {
	if opt == nil {
		opt = &QuantileAdaptiveClipAverageQueryOptions{}
	}
	numerator, err := NewQuantileAdaptiveClipSumQuery(&QuantileAdaptiveClipSumQueryOptions{
		InitialL2NormClip:       opt.InitialL2NormClip,
		NoiseMultiplier:         opt.NoiseMultiplier,
		TargetUnclippedQuantile: opt.TargetUnclippedQuantile,
		LearningRate:            opt.LearningRate,
		ClippedCountStddev:      opt.ClippedCountStddev,
		ExpectedNumRecords:      opt.ExpectedNumRecords,
		GeometricUpdate:         opt.GeometricUpdate,
		Noise:                   opt.Noise,
	})
	if err != nil {
		return nil, fmt.Errorf("NewQuantileAdaptiveClipAverageQuery: %w", err)
	}
	avg, err := NewNormalizedQuery[AdaptiveClipGlobalState, AdaptiveClipSampleParams, AdaptiveClipSampleState](numerator, opt.Denominator)
	if err != nil {
		return nil, fmt.Errorf("NewQuantileAdaptiveClipAverageQuery: %w", err)
	}
	return avg, nil
}
