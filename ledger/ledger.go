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

// Package ledger records the privacy-consuming operations of DP queries so
// that their cumulative privacy cost can be computed by an accountant.
package ledger

import (
	"fmt"
	"sync"

	log "github.com/golang/glog"
	"github.com/google/differential-privacy/adaptiveclip/checks"
)

// SumQueryEntry describes one Gaussian sum query.
type SumQueryEntry struct {
	L2NormClip float64
	Stddev     float64
}

// SampleEntry describes the queries run on one sample of the population.
type SampleEntry struct {
	PopulationSize       int64
	SelectionProbability float64
	Queries              []SumQueryEntry
}

// PrivacyLedger is an in-memory ledger of sampling and sum query events.
// Queries are recorded into an open sample that FinalizeSample closes.
//
// PrivacyLedger is safe for concurrent use.
type PrivacyLedger struct {
	mu                   sync.Mutex
	populationSize       int64
	selectionProbability float64
	open                 []SumQueryEntry
	samples              []SampleEntry
}

// NewPrivacyLedger returns an empty PrivacyLedger for samples drawn from a
// population of populationSize with selectionProbability.
func NewPrivacyLedger(populationSize int64, selectionProbability float64) (*PrivacyLedger, error) {
	if err := checks.CheckPopulationSize(populationSize); err != nil {
		return nil, fmt.Errorf("NewPrivacyLedger: %w", err)
	}
	if err := checks.CheckSelectionProbability(selectionProbability); err != nil {
		return nil, fmt.Errorf("NewPrivacyLedger: %w", err)
	}
	return &PrivacyLedger{
		populationSize:       populationSize,
		selectionProbability: selectionProbability,
	}, nil
}

// RecordSumQuery records a sum query in the open sample.
func (l *PrivacyLedger) RecordSumQuery(l2NormClip, stddev float64) error {
	if err := checks.CheckL2NormClip(l2NormClip); err != nil {
		return fmt.Errorf("PrivacyLedger.RecordSumQuery: %w", err)
	}
	if err := checks.CheckStddev(stddev); err != nil {
		return fmt.Errorf("PrivacyLedger.RecordSumQuery: %w", err)
	}
	if stddev == 0 && l2NormClip > 0 {
		log.Warningf("PrivacyLedger: recorded a sum query with L2NormClip %f and no noise", l2NormClip)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = append(l.open, SumQueryEntry{L2NormClip: l2NormClip, Stddev: stddev})
	return nil
}

// FinalizeSample closes the open sample, even if no query was recorded in it.
func (l *PrivacyLedger) FinalizeSample() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples = append(l.samples, SampleEntry{
		PopulationSize:       l.populationSize,
		SelectionProbability: l.selectionProbability,
		Queries:              l.open,
	})
	l.open = nil
}

// Samples returns a copy of the finalized samples.
func (l *PrivacyLedger) Samples() []SampleEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	samples := make([]SampleEntry, len(l.samples))
	for i, s := range l.samples {
		samples[i] = s
		samples[i].Queries = append([]SumQueryEntry(nil), s.Queries...)
	}
	return samples
}
