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

// Package vector implements the numeric-vector records aggregated by
// differentially private queries.
package vector

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Vector is a dense record of float64 values.
type Vector []float64

// Zeros returns a zero-valued Vector of dimension n.
func Zeros(n int) Vector {
	return make(Vector, n)
}

// ZerosLike returns a zero-valued Vector with the same dimension as template.
func ZerosLike(template Vector) Vector {
	return Zeros(len(template))
}

// Clone returns a copy of v.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	c := make(Vector, len(v))
	copy(c, v)
	return c
}

// L2Norm returns the Euclidean norm of v.
func (v Vector) L2Norm() float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, 2)
}

// ClipToL2Norm returns a copy of v scaled down so that its L2 norm is at most
// l2NormClip, together with the norm of v before clipping. Vectors whose norm
// is already within the bound are copied unchanged; v itself is never modified.
func ClipToL2Norm(v Vector, l2NormClip float64) (Vector, float64) {
	norm := v.L2Norm()
	clipped := v.Clone()
	if norm > l2NormClip {
		floats.Scale(l2NormClip/norm, clipped)
	}
	return clipped, norm
}

// AddTo adds s to dst element-wise, in place.
func AddTo(dst, s Vector) error {
	if len(dst) != len(s) {
		return fmt.Errorf("vector dimensions do not match: got %d and %d", len(dst), len(s))
	}
	floats.Add(dst, s)
	return nil
}

// Divide returns a new Vector holding v divided element-wise by denominator.
func Divide(v Vector, denominator float64) Vector {
	return floats.ScaleTo(make(Vector, len(v)), 1/denominator, v)
}
