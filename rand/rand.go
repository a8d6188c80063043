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

// Package rand provides the random bits that noise generation is built on.
//
// All randomness is drawn from a Source. The package-level Secure source
// reads from crypto/rand; tests can build a Source over any io.Reader.
// Running out of randomness is reported as an error rather than silently
// degrading the noise.
package rand

import (
	"bufio"
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/bits"
	"sync"
)

// Source is a thread-safe stream of uniformly random bits.
type Source struct {
	mu     sync.Mutex
	r      io.Reader
	bitBuf uint8
	bitPos int8
}

// NewSource returns a Source that reads its random bits from r.
func NewSource(r io.Reader) *Source {
	return &Source{r: r, bitPos: math.MaxInt8}
}

var secure = NewSource(bufio.NewReaderSize(cryptorand.Reader, 65536))

// Secure returns the process-wide Source backed by crypto/rand.
func Secure() *Source {
	return secure
}

func (s *Source) read(b []byte) error {
	if _, err := io.ReadFull(s.r, b); err != nil {
		return fmt.Errorf("out of randomness: %w", err)
	}
	return nil
}

func (s *Source) u64() (uint64, error) {
	var r [8]uint8
	if err := s.read(r[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(r[:]), nil
}

func (s *Source) u8() (uint8, error) {
	var r [1]uint8
	if err := s.read(r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

func (s *Source) geometric() (float64, error) {
	// 1 plus the number of leading zeros from an infinite stream of random bits
	// follows the desired geometric distribution.
	b := 1
	var r uint8
	for r == 0 {
		var err error
		if r, err = s.u8(); err != nil {
			return 0, err
		}
		b += bits.LeadingZeros8(r)
	}
	return float64(b), nil
}

// U64 returns a uniformly random uint64.
func (s *Source) U64() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.u64()
}

// Boolean returns true or false with equal probability.
func (s *Source) Boolean() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bitPos > 7 { // Out of buffered bits.
		b, err := s.u8()
		if err != nil {
			return false, err
		}
		s.bitBuf, s.bitPos = b, 0
	}
	res := s.bitBuf&(1<<s.bitPos) > 0
	s.bitPos++
	return res, nil
}

// I63n returns an integer from the set {0,...,n-1} uniformly at random.
// The value of n must be positive.
func (s *Source) I63n(n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("I63n: n is %d, must be strictly positive", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	largestMultipleOfN := (math.MaxInt64 / n) * n
	for {
		u, err := s.u64()
		if err != nil {
			return 0, err
		}
		// Clear the sign bit.
		if r := int64(u) & 0x7fffffffffffffff; r < largestMultipleOfN {
			return r % n, nil
		}
	}
}

// Uniform returns a float64 from the interval (0,1] such that each float in
// the interval is returned with positive probability and the resulting
// distribution simulates a continuous uniform distribution on (0, 1].
func (s *Source) Uniform() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.u64()
	if err != nil {
		return 0, err
	}
	g, err := s.geometric()
	if err != nil {
		return 0, err
	}
	r := (1 + float64(u%(1<<53))/(1<<53)) / math.Pow(2, g)
	if r == 0 {
		return 1, nil
	}
	return r, nil
}

// Geometric returns a float64 that counts the number of Bernoulli trials until
// the first success for a success probability of 0.5.
func (s *Source) Geometric() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geometric()
}
