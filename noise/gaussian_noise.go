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
	"fmt"
	"math"

	"github.com/google/differential-privacy/adaptiveclip/checks"
	"github.com/google/differential-privacy/adaptiveclip/rand"
)

var (
	// The square root of the maximum number n of Bernoulli trials from which a binomial
	// sample is drawn. Larger values result in more fine-grained noise, but increase the
	// chance of sampling inaccuracies due to overflows. The probability of such an event
	// will be roughly 2⁻⁴⁵ or less, if the square root is set to 2⁵⁷.
	binomialBound = math.Exp2(57.0)
	// The two-sided geometric samples k used to build a binomial sample are bounded so
	// that m = (k + l) * (sqrt(2 * n) + 1) cannot overflow, where l is uniform in [0, 1).
	// A single sample is bounded with probability 2⁻⁴⁵.
	geometricBound = (math.MaxInt64 / int64(math.Round(math.Sqrt2*binomialBound+1.0))) - 1
)

type gaussian struct {
	src *rand.Source
}

// Gaussian returns a Noise instance that adds Gaussian noise drawn from the
// secure random source.
//
// The noise is based on a binomial sampling mechanism that is robust against
// unintentional privacy leaks due to artifacts of floating-point arithmetic. See
// https://github.com/google/differential-privacy/blob/main/common_docs/Secure_Noise_Generation.pdf.
// Results are multiples of a power-of-two granularity smaller than 2⁻⁵⁵ × σ,
// so float64 precision keeps the noise distribution intact.
func Gaussian() Noise {
	return gaussian{src: rand.Secure()}
}

// GaussianWithSource returns a Gaussian Noise instance drawing its random bits
// from src.
func GaussianWithSource(src *rand.Source) Noise {
	return gaussian{src: src}
}

// AddNoiseFloat64 adds Gaussian noise with standard deviation stddev to x.
func (g gaussian) AddNoiseFloat64(x, stddev float64) (float64, error) {
	if err := checks.CheckStddev(stddev); err != nil {
		return 0, fmt.Errorf("gaussian.AddNoiseFloat64: %w", err)
	}
	if stddev == 0 {
		return x, nil
	}
	return g.addGaussian(x, stddev)
}

func (gaussian) String() string {
	return "Gaussian Noise"
}

// addGaussian adds Gaussian noise of scale σ to the specified float64.
func (g gaussian) addGaussian(x, sigma float64) (float64, error) {
	granularity := ceilPowerOfTwo(2.0 * sigma / binomialBound)
	if math.IsNaN(granularity) {
		return 0, fmt.Errorf("gaussian.addGaussian: cannot derive a granularity for sigma %e", sigma)
	}
	// sqrtN lies between binomialBound / 2 and binomialBound, so the binomial
	// distribution consists of enough Bernoulli samples to closely approximate a
	// Gaussian distribution.
	sqrtN := 2.0 * sigma / granularity
	sample, err := g.symmetricBinomial(sqrtN)
	if err != nil {
		return 0, err
	}
	return roundToMultipleOfPowerOfTwo(x, granularity) + float64(sample)*granularity, nil
}

// symmetricBinomial returns a random sample m where the term m + n / 2 is drawn from
// a binomial distribution of n Bernoulli trials that have a success probability of
// 0.5 each. The sampling technique is based on Bringmann et al.'s rejection sampling
// approach proposed in "Internal DLA: Efficient Simulation of a Physical Growth Model"
// (https://people.mpi-inf.mpg.de/~kbringma/paper/2014ICALP.pdf).
func (g gaussian) symmetricBinomial(sqrtN float64) (int64, error) {
	stepSize := int64(math.Round(math.Sqrt2*sqrtN + 1.0))
	for {
		geo, err := g.src.Geometric()
		if err != nil {
			return 0, err
		}
		// Count Bernoulli failures rather than trials until the first success.
		boundedGeometricSample := int64(math.Min(geo-1.0, float64(geometricBound)))
		twoSidedGeometricSample := boundedGeometricSample
		negative, err := g.src.Boolean()
		if err != nil {
			return 0, err
		}
		if negative {
			twoSidedGeometricSample = -twoSidedGeometricSample - 1
		}

		offset, err := g.src.I63n(stepSize)
		if err != nil {
			return 0, err
		}
		result := stepSize*twoSidedGeometricSample + offset
		resultProbability := binomialProbability(sqrtN, result)
		rejectProbability, err := g.src.Uniform()
		if err != nil {
			return 0, err
		}
		if resultProbability > 0.0 &&
			rejectProbability < resultProbability*float64(stepSize)*math.Pow(2.0, float64(boundedGeometricSample))/4.0 {
			return result, nil
		}
	}
}

// binomialProbability approximates the probability of a random sample m + n / 2
// drawn from a binomial distribution of n Bernoulli trials that have a success
// probability of 1 / 2 each. The approximation is based on Lemma 7 of
// https://github.com/google/differential-privacy/blob/main/common_docs/Secure_Noise_Generation.pdf.
func binomialProbability(sqrtN float64, m int64) float64 {
	if math.Abs(float64(m)) > sqrtN*math.Sqrt(math.Log(sqrtN)/2.0) {
		return 0.0
	}
	return (math.Sqrt(2.0/math.Pi) / sqrtN) *
		math.Exp((-2.0*float64(m)*float64(m))/(sqrtN*sqrtN)) *
		(1 - 0.4*math.Pow(2.0, 1.5)*math.Pow(math.Log(sqrtN), 1.5)/sqrtN)
}
