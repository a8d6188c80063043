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

// Package noise contains methods to add calibrated noise to data.
//
// Unlike mechanisms that derive their noise scale from (ε,δ), the noise here is
// parameterized directly by its standard deviation: callers such as Gaussian sum
// queries compute the scale from a clipping norm and a noise multiplier, and
// privacy accounting is left to a ledger.
package noise

// Noise is an interface for primitives that add zero-mean noise of a given
// standard deviation to data.
type Noise interface {
	// AddNoiseFloat64 returns x plus a zero-mean noise sample with standard
	// deviation stddev. A stddev of 0 returns x unchanged.
	AddNoiseFloat64(x, stddev float64) (float64, error)
}
