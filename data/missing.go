// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package data

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MissingRecorder accumulates every (ticker, date) that could not be priced
// so callers can report unavailable data instead of a silent zero
type MissingRecorder struct {
	locker sync.Mutex
	seen   map[string]struct{}
	items  []Missing
}

func NewMissingRecorder() *MissingRecorder {
	return &MissingRecorder{
		seen: make(map[string]struct{}),
	}
}

// Record adds ticker on date if it has not already been recorded
func (m *MissingRecorder) Record(ticker string, date time.Time) {
	key := ticker + ":" + date.Format("2006-01-02")

	m.locker.Lock()
	defer m.locker.Unlock()

	if _, ok := m.seen[key]; ok {
		return
	}
	m.seen[key] = struct{}{}
	m.items = append(m.items, Missing{Ticker: ticker, Date: date})
	log.Debug().Str("Ticker", ticker).Time("Date", date).Msg("recorded missing price")
}

// Items returns the recorded pairs ordered by date then ticker
func (m *MissingRecorder) Items() []Missing {
	m.locker.Lock()
	res := make([]Missing, len(m.items))
	copy(res, m.items)
	m.locker.Unlock()

	sort.Slice(res, func(i, j int) bool {
		if res[i].Date.Equal(res[j].Date) {
			return res[i].Ticker < res[j].Ticker
		}
		return res[i].Date.Before(res[j].Date)
	})
	return res
}

func (m *MissingRecorder) Len() int {
	m.locker.Lock()
	defer m.locker.Unlock()
	return len(m.items)
}

// Reset clears all recorded pairs
func (m *MissingRecorder) Reset() {
	m.locker.Lock()
	defer m.locker.Unlock()
	m.seen = make(map[string]struct{})
	m.items = nil
}
