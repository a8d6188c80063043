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

package checks

import (
	"math"
	"testing"
)

func TestCheckL2NormClipStrict(t *testing.T) {
	for _, tc := range []struct {
		desc       string
		l2NormClip float64
		wantErr    bool
	}{
		{"positive clip", 1.0, false},
		{"tiny positive clip", math.SmallestNonzeroFloat64, false},
		{"zero clip", 0, true},
		{"negative clip", -1, true},
		{"clip is NaN", math.NaN(), true},
		{"clip is positive infinity", math.Inf(1), true},
	} {
		if err := CheckL2NormClipStrict(tc.l2NormClip); (err != nil) != tc.wantErr {
			t.Errorf("CheckL2NormClipStrict: when %s for err got %v, want %t", tc.desc, err, tc.wantErr)
		}
	}
}

func TestCheckL2NormClip(t *testing.T) {
	for _, tc := range []struct {
		desc       string
		l2NormClip float64
		wantErr    bool
	}{
		{"positive clip", 0.5, false},
		{"zero clip", 0, false},
		{"negative clip", -0.5, true},
		{"clip is NaN", math.NaN(), true},
		{"clip is negative infinity", math.Inf(-1), true},
	} {
		if err := CheckL2NormClip(tc.l2NormClip); (err != nil) != tc.wantErr {
			t.Errorf("CheckL2NormClip: when %s for err got %v, want %t", tc.desc, err, tc.wantErr)
		}
	}
}

func TestCheckStddev(t *testing.T) {
	for _, tc := range []struct {
		desc    string
		stddev  float64
		wantErr bool
	}{
		{"zero stddev", 0, false},
		{"positive stddev", 3.5, false},
		{"negative stddev", -1e-9, true},
		{"stddev is NaN", math.NaN(), true},
		{"stddev is infinity", math.Inf(1), true},
	} {
		if err := CheckStddev(tc.stddev); (err != nil) != tc.wantErr {
			t.Errorf("CheckStddev: when %s for err got %v, want %t", tc.desc, err, tc.wantErr)
		}
	}
}

func TestCheckStddevUsesCustomName(t *testing.T) {
	err := CheckStddev(-1, "ClippedCountStddev")
	if err == nil {
		t.Fatalf("CheckStddev(-1): got nil error, want error")
	}
	if got, want := err.Error(), "ClippedCountStddev is -1.000000, must be nonnegative and finite"; got != want {
		t.Errorf("CheckStddev(-1): got error %q, want %q", got, want)
	}
	if err := CheckStddev(1, "a", "b"); err == nil {
		t.Errorf("CheckStddev with two names: got nil error, want error")
	}
}

func TestCheckNoiseMultiplier(t *testing.T) {
	for _, tc := range []struct {
		desc            string
		noiseMultiplier float64
		wantErr         bool
	}{
		{"zero multiplier", 0, false},
		{"positive multiplier", 1.1, false},
		{"negative multiplier", -0.1, true},
		{"multiplier is NaN", math.NaN(), true},
		{"multiplier is infinity", math.Inf(1), true},
	} {
		if err := CheckNoiseMultiplier(tc.noiseMultiplier); (err != nil) != tc.wantErr {
			t.Errorf("CheckNoiseMultiplier: when %s for err got %v, want %t", tc.desc, err, tc.wantErr)
		}
	}
}

func TestCheckTargetUnclippedQuantile(t *testing.T) {
	for _, tc := range []struct {
		desc     string
		quantile float64
		wantErr  bool
	}{
		{"quantile = 0", 0, false},
		{"quantile = 1", 1, false},
		{"quantile in (0, 1)", 0.8, false},
		{"negative quantile", -0.01, true},
		{"quantile > 1", 1.01, true},
		{"quantile is NaN", math.NaN(), true},
	} {
		if err := CheckTargetUnclippedQuantile(tc.quantile); (err != nil) != tc.wantErr {
			t.Errorf("CheckTargetUnclippedQuantile: when %s for err got %v, want %t", tc.desc, err, tc.wantErr)
		}
	}
}

func TestCheckLearningRate(t *testing.T) {
	for _, tc := range []struct {
		desc         string
		learningRate float64
		wantErr      bool
	}{
		{"zero learning rate", 0, false},
		{"positive learning rate", 0.2, false},
		{"negative learning rate", -0.2, true},
		{"learning rate is NaN", math.NaN(), true},
		{"learning rate is infinity", math.Inf(1), true},
	} {
		if err := CheckLearningRate(tc.learningRate); (err != nil) != tc.wantErr {
			t.Errorf("CheckLearningRate: when %s for err got %v, want %t", tc.desc, err, tc.wantErr)
		}
	}
}

func TestCheckExpectedNumRecords(t *testing.T) {
	for _, tc := range []struct {
		desc               string
		expectedNumRecords float64
		wantErr            bool
	}{
		{"positive number of records", 10, false},
		{"fractional number of records", 0.5, false},
		{"zero records", 0, true},
		{"negative records", -3, true},
		{"records is infinity", math.Inf(1), true},
	} {
		if err := CheckExpectedNumRecords(tc.expectedNumRecords); (err != nil) != tc.wantErr {
			t.Errorf("CheckExpectedNumRecords: when %s for err got %v, want %t", tc.desc, err, tc.wantErr)
		}
	}
}

func TestCheckDenominator(t *testing.T) {
	for _, tc := range []struct {
		desc        string
		denominator float64
		wantErr     bool
	}{
		{"positive denominator", 100, false},
		{"zero denominator", 0, true},
		{"negative denominator", -1, true},
		{"denominator is NaN", math.NaN(), true},
	} {
		if err := CheckDenominator(tc.denominator); (err != nil) != tc.wantErr {
			t.Errorf("CheckDenominator: when %s for err got %v, want %t", tc.desc, err, tc.wantErr)
		}
	}
}

func TestCheckLedgerParameters(t *testing.T) {
	if err := CheckPopulationSize(0); err == nil {
		t.Errorf("CheckPopulationSize(0): got nil error, want error")
	}
	if err := CheckPopulationSize(1000); err != nil {
		t.Errorf("CheckPopulationSize(1000): got %v, want nil", err)
	}
	for _, tc := range []struct {
		p       float64
		wantErr bool
	}{
		{0, false},
		{1, false},
		{0.01, false},
		{-0.01, true},
		{1.5, true},
		{math.NaN(), true},
	} {
		if err := CheckSelectionProbability(tc.p); (err != nil) != tc.wantErr {
			t.Errorf("CheckSelectionProbability(%f): for err got %v, want %t", tc.p, err, tc.wantErr)
		}
	}
}

func TestCheckWorkers(t *testing.T) {
	for _, tc := range []struct {
		workers int
		wantErr bool
	}{
		{1, false},
		{8, false},
		{0, true},
		{-2, true},
	} {
		if err := CheckWorkers(tc.workers); (err != nil) != tc.wantErr {
			t.Errorf("CheckWorkers(%d): for err got %v, want %t", tc.workers, err, tc.wantErr)
		}
	}
}
