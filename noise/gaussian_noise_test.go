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

package noise

import (
	"bytes"
	"math"
	"testing"

	"github.com/google/differential-privacy/adaptiveclip/rand"
	"github.com/grd/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// The 99.9995% quantile of the standard normal distribution; statistical tests
// using it as tolerance falsely reject with a probability of 10⁻⁵.
var z = distuv.UnitNormal.Quantile(1 - 0.5e-5)

func nearEqual(a, b, maxError float64) bool {
	return math.Abs(a-b) <= maxError
}

func TestGaussianStatistics(t *testing.T) {
	const numberOfSamples = 125000
	for _, tc := range []struct {
		mean, stddev float64
	}{
		{mean: 0.0, stddev: 1.0},
		{mean: 45941223.02107, stddev: 1.0},
		{mean: 0.0, stddev: 0.5},
		{mean: -3.25, stddev: 5.3633},
		{mean: 0.0, stddev: 1e-6},
	} {
		gauss := Gaussian()
		noisedSamples := make(stat.Float64Slice, numberOfSamples)
		for i := 0; i < numberOfSamples; i++ {
			var err error
			noisedSamples[i], err = gauss.AddNoiseFloat64(tc.mean, tc.stddev)
			if err != nil {
				t.Fatalf("Couldn't noise samples: %v", err)
			}
		}
		mean, variance := stat.Mean(noisedSamples), stat.Variance(noisedSamples)
		wantVariance := tc.stddev * tc.stddev
		// The sample mean is approximately Gaussian distributed with a mean of tc.mean and a
		// standard deviation of tc.stddev / sqrt(numberOfSamples).
		meanErrorTolerance := z * tc.stddev / math.Sqrt(float64(numberOfSamples))
		// The sample variance is approximately Gaussian distributed with a mean of tc.stddev² and
		// a standard deviation of sqrt(2) * tc.stddev² / sqrt(numberOfSamples).
		varianceErrorTolerance := z * math.Sqrt2 * wantVariance / math.Sqrt(float64(numberOfSamples))

		if !nearEqual(mean, tc.mean, meanErrorTolerance) {
			t.Errorf("got mean = %f, want %f (parameters %+v)", mean, tc.mean, tc)
		}
		if !nearEqual(variance, wantVariance, varianceErrorTolerance) {
			t.Errorf("got variance = %e, want %e (parameters %+v)", variance, wantVariance, tc)
		}
	}
}

func TestSymmetricBinomialStatistics(t *testing.T) {
	const numberOfSamples = 125000
	g := gaussian{src: rand.Secure()}
	for _, tc := range []struct {
		sqrtN  float64
		stdDev float64
	}{
		{sqrtN: 1000.0, stdDev: 500.0},
		{sqrtN: 1000000.0, stdDev: 500000.0},
		{sqrtN: 1000000000.0, stdDev: 500000000.0},
	} {
		binomialSamples := make(stat.Float64Slice, numberOfSamples)
		for i := 0; i < numberOfSamples; i++ {
			s, err := g.symmetricBinomial(tc.sqrtN)
			if err != nil {
				t.Fatalf("symmetricBinomial(%f): got error %v", tc.sqrtN, err)
			}
			binomialSamples[i] = float64(s)
		}
		mean, variance := stat.Mean(binomialSamples), stat.Variance(binomialSamples)
		meanErrorTolerance := z * tc.stdDev / math.Sqrt(float64(numberOfSamples))
		varianceErrorTolerance := z * math.Sqrt2 * math.Pow(tc.stdDev, 2.0) / math.Sqrt(float64(numberOfSamples))

		if !nearEqual(mean, 0, meanErrorTolerance) {
			t.Errorf("got mean = %f, want 0 (parameters %+v)", mean, tc)
		}
		if !nearEqual(variance, math.Pow(tc.stdDev, 2.0), varianceErrorTolerance) {
			t.Errorf("got variance = %f, want %f (parameters %+v)", variance, math.Pow(tc.stdDev, 2.0), tc)
		}
	}
}

func TestAddGaussianRoundsToGranularity(t *testing.T) {
	const numberOfTrials = 1000
	for _, tc := range []struct {
		stddev          float64
		wantGranularity float64
	}{
		{stddev: 6.8e10, wantGranularity: 1.0 / 1048576.0},
		{stddev: 7.0e13, wantGranularity: 1.0 / 1024.0},
		{stddev: 2.2e15, wantGranularity: 1.0 / 32},
		{stddev: 1.7e16, wantGranularity: 1.0 / 4.0},
	} {
		gauss := Gaussian()
		for i := 0; i < numberOfTrials; i++ {
			noised, err := gauss.AddNoiseFloat64(0.5, tc.stddev)
			if err != nil {
				t.Fatalf("AddNoiseFloat64(0.5, %e): got error %v", tc.stddev, err)
			}
			if math.Mod(noised, tc.wantGranularity) != 0 {
				t.Fatalf("AddNoiseFloat64(0.5, %e): got %f, want a multiple of %e", tc.stddev, noised, tc.wantGranularity)
			}
		}
	}
}

func TestAddNoiseFloat64WithZeroStddevIsIdentity(t *testing.T) {
	// An empty source proves no randomness is consumed.
	gauss := GaussianWithSource(rand.NewSource(bytes.NewReader(nil)))
	for _, x := range []float64{0, -1.5, 3.14159, 1e300} {
		got, err := gauss.AddNoiseFloat64(x, 0)
		if err != nil {
			t.Fatalf("AddNoiseFloat64(%f, 0): got error %v", x, err)
		}
		if got != x {
			t.Errorf("AddNoiseFloat64(%f, 0): got %f, want %f", x, got, x)
		}
	}
}

func TestAddNoiseFloat64RejectsInvalidStddev(t *testing.T) {
	for _, stddev := range []float64{-1, math.NaN(), math.Inf(1)} {
		if _, err := Gaussian().AddNoiseFloat64(0, stddev); err == nil {
			t.Errorf("AddNoiseFloat64(0, %f): got nil error, want error", stddev)
		}
	}
}

func TestAddNoiseFloat64PropagatesRandomnessFailure(t *testing.T) {
	gauss := GaussianWithSource(rand.NewSource(bytes.NewReader([]byte{0x80})))
	if _, err := gauss.AddNoiseFloat64(0, 1); err == nil {
		t.Errorf("AddNoiseFloat64 with an exhausted source: got nil error, want error")
	}
}

func TestCeilPowerOfTwo(t *testing.T) {
	for _, tc := range []struct {
		x, want float64
	}{
		{1.0, 1.0},
		{0.75, 1.0},
		{3.0, 4.0},
		{0.5, 0.5},
		{1023.1, 1024.0},
		{math.Exp2(-1070), math.Exp2(-1070)},
		{1.5 * math.Exp2(-1070), math.Exp2(-1069)},
	} {
		if got := ceilPowerOfTwo(tc.x); got != tc.want {
			t.Errorf("ceilPowerOfTwo(%e): got %e, want %e", tc.x, got, tc.want)
		}
	}
	for _, x := range []float64{0, -1, math.Inf(1), math.NaN(), math.MaxFloat64} {
		if got := ceilPowerOfTwo(x); !math.IsNaN(got) {
			t.Errorf("ceilPowerOfTwo(%e): got %e, want NaN", x, got)
		}
	}
}

func TestRoundToMultipleOfPowerOfTwo(t *testing.T) {
	for _, tc := range []struct {
		x, granularity, want float64
	}{
		{0.0, 1.0, 0.0},
		{0.2, 0.5, 0.0},
		{0.3, 0.5, 0.5},
		{-2.4, 2.0, -2.0},
		{1.3, 0.25, 1.25},
	} {
		if got := roundToMultipleOfPowerOfTwo(tc.x, tc.granularity); got != tc.want {
			t.Errorf("roundToMultipleOfPowerOfTwo(%f, %f): got %f, want %f", tc.x, tc.granularity, got, tc.want)
		}
	}
}
