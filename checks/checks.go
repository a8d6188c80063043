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

// Package checks contains checks for the parameters of differentially private queries.
package checks

import (
	"fmt"
	"math"

	log "github.com/golang/glog"
)

const (
	stddevName     = "Stddev"
	l2NormClipName = "L2NormClip"
)

func verifyName(defaultName string, nameSlice []string) (string, error) {
	switch len(nameSlice) {
	case 0:
		return defaultName, nil
	case 1:
		return nameSlice[0], nil
	default:
		return "", fmt.Errorf("there should be 0 or 1 'name' parameter, got %d", len(nameSlice))
	}
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// CheckL2NormClipStrict returns an error if the clipping norm is nonpositive or not finite.
func CheckL2NormClipStrict(l2NormClip float64, name ...string) error {
	clipName, err := verifyName(l2NormClipName, name)
	if err != nil {
		return err
	}
	if l2NormClip <= 0 || !isFinite(l2NormClip) {
		return fmt.Errorf("%s is %f, must be strictly positive and finite", clipName, l2NormClip)
	}
	return nil
}

// CheckL2NormClip returns an error if the clipping norm is negative or not finite.
func CheckL2NormClip(l2NormClip float64, name ...string) error {
	clipName, err := verifyName(l2NormClipName, name)
	if err != nil {
		return err
	}
	if l2NormClip < 0 || !isFinite(l2NormClip) {
		return fmt.Errorf("%s is %f, must be nonnegative and finite", clipName, l2NormClip)
	}
	if l2NormClip == 0 {
		log.Warningf("%s is 0: all added records will be clipped to the zero vector", clipName)
	}
	return nil
}

// CheckStddev returns an error if a noise standard deviation is negative or not finite.
func CheckStddev(stddev float64, name ...string) error {
	sdName, err := verifyName(stddevName, name)
	if err != nil {
		return err
	}
	if stddev < 0 || !isFinite(stddev) {
		return fmt.Errorf("%s is %f, must be nonnegative and finite", sdName, stddev)
	}
	return nil
}

// CheckNoiseMultiplier returns an error if the noise multiplier is negative or not finite.
func CheckNoiseMultiplier(noiseMultiplier float64) error {
	if noiseMultiplier < 0 || !isFinite(noiseMultiplier) {
		return fmt.Errorf("NoiseMultiplier is %f, must be nonnegative and finite", noiseMultiplier)
	}
	return nil
}

// CheckTargetUnclippedQuantile returns an error if the target quantile is outside of [0, 1].
func CheckTargetUnclippedQuantile(quantile float64) error {
	if math.IsNaN(quantile) || quantile < 0 || quantile > 1 {
		return fmt.Errorf("TargetUnclippedQuantile is %f, must be within [0, 1]", quantile)
	}
	if quantile == 0 || quantile == 1 {
		log.Warningf("TargetUnclippedQuantile is %f: the clipping norm will keep moving in one direction", quantile)
	}
	return nil
}

// CheckLearningRate returns an error if the learning rate is negative or not finite.
func CheckLearningRate(learningRate float64) error {
	if learningRate < 0 || !isFinite(learningRate) {
		return fmt.Errorf("LearningRate is %f, must be nonnegative and finite", learningRate)
	}
	return nil
}

// CheckExpectedNumRecords returns an error if the expected number of records per round is
// nonpositive or not finite.
func CheckExpectedNumRecords(expectedNumRecords float64) error {
	if expectedNumRecords <= 0 || !isFinite(expectedNumRecords) {
		return fmt.Errorf("ExpectedNumRecords is %f, must be strictly positive and finite", expectedNumRecords)
	}
	return nil
}

// CheckDenominator returns an error if a normalization constant is nonpositive or not finite.
func CheckDenominator(denominator float64) error {
	if denominator <= 0 || !isFinite(denominator) {
		return fmt.Errorf("Denominator is %f, must be strictly positive and finite", denominator)
	}
	return nil
}

// CheckPopulationSize returns an error if populationSize is nonpositive.
func CheckPopulationSize(populationSize int64) error {
	if populationSize <= 0 {
		return fmt.Errorf("PopulationSize is %d, must be strictly positive", populationSize)
	}
	return nil
}

// CheckSelectionProbability returns an error if the probability is outside of [0, 1].
func CheckSelectionProbability(selectionProbability float64) error {
	if math.IsNaN(selectionProbability) || selectionProbability < 0 || selectionProbability > 1 {
		return fmt.Errorf("SelectionProbability is %f, must be within [0, 1]", selectionProbability)
	}
	return nil
}

// CheckWorkers returns an error if workers is less than 1.
func CheckWorkers(workers int) error {
	if workers < 1 {
		return fmt.Errorf("Workers is %d, must be at least 1", workers)
	}
	return nil
}
