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
	"errors"
	"math"

	"github.com/google/differential-privacy/adaptiveclip/vector"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/stat/distuv"
)

// This file contains structs, functions, and values used to test DP queries.

var (
	tenten = math.Pow10(-10)
	// The 99.9995% quantile of the standard normal distribution.
	z = distuv.UnitNormal.Quantile(1 - 0.5e-5)

	errLedgerFull = errors.New("ledger is full")
	errNoRandom   = errors.New("no randomness left")
)

// noNoise is a Noise instance that doesn't add noise to the data.
type noNoise struct{}

func (noNoise) AddNoiseFloat64(x, _ float64) (float64, error) {
	return x, nil
}

// failingNoise is a Noise instance that always fails.
type failingNoise struct{}

func (failingNoise) AddNoiseFloat64(_, _ float64) (float64, error) {
	return 0, errNoRandom
}

func ApproxEqual(x, y float64) bool {
	return cmp.Equal(x, y, cmpopts.EquateApprox(0, tenten))
}

type sumQueryEntry struct {
	L2NormClip, Stddev float64
}

// fakeLedger records the sum queries it is notified of, and fails once it
// holds capacity entries if capacity is positive.
type fakeLedger struct {
	entries  []sumQueryEntry
	capacity int
}

func (l *fakeLedger) RecordSumQuery(l2NormClip, stddev float64) error {
	if l.capacity > 0 && len(l.entries) >= l.capacity {
		return errLedgerFull
	}
	l.entries = append(l.entries, sumQueryEntry{L2NormClip: l2NormClip, Stddev: stddev})
	return nil
}

// records returns numClipped records of norm 2 followed by numUnclipped
// records of norm 0.5, all of dimension 2.
func records(numClipped, numUnclipped int) []vector.Vector {
	var rs []vector.Vector
	for i := 0; i < numClipped; i++ {
		rs = append(rs, vector.Vector{0, 2})
	}
	for i := 0; i < numUnclipped; i++ {
		rs = append(rs, vector.Vector{0.3, 0.4})
	}
	return rs
}
