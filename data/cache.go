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
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/common"
)

const (
	DefaultLookbackDays   = 7
	DefaultMinRequestDays = 365
	blobKeyPrefix         = "pvdash:prices:"
)

// BlobStore is a second level cache shared between processes
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte) error
}

type priceEntry struct {
	Points   []*PricePoint `json:"points"`
	Covered  []*Interval   `json:"covered"`
	LoadedAt time.Time     `json:"loadedAt"`
}

// PriceCache resolves prices for (ticker, date) pairs and memoizes every
// range it fetches from the provider. Published point slices are never
// modified; a merge always builds a new slice.
type PriceCache struct {
	provider   Provider
	lookback   int
	minRequest int
	ttl        time.Duration
	now        func() time.Time
	store      BlobStore
	missing    *MissingRecorder

	entries map[string]*priceEntry
	locker  sync.RWMutex
	group   singleflight.Group
}

type CacheOption func(*PriceCache)

// WithLookback sets how many days a price may be carried forward
func WithLookback(days int) CacheOption {
	return func(cache *PriceCache) {
		if days >= 0 {
			cache.lookback = days
		}
	}
}

// WithTTL sets how long a loaded ticker stays fresh; 0 never expires
func WithTTL(ttl time.Duration) CacheOption {
	return func(cache *PriceCache) {
		cache.ttl = ttl
	}
}

// WithMinRequest widens lazy provider requests to at least days
func WithMinRequest(days int) CacheOption {
	return func(cache *PriceCache) {
		if days >= 0 {
			cache.minRequest = days
		}
	}
}

// WithClock overrides the time source used for freshness checks
func WithClock(now func() time.Time) CacheOption {
	return func(cache *PriceCache) {
		cache.now = now
	}
}

// WithBlobStore consults store before calling the provider and writes every
// populated ticker back to it
func WithBlobStore(store BlobStore) CacheOption {
	return func(cache *PriceCache) {
		cache.store = store
	}
}

// WithMissingRecorder shares a recorder between caches or requests
func WithMissingRecorder(recorder *MissingRecorder) CacheOption {
	return func(cache *PriceCache) {
		cache.missing = recorder
	}
}

func NewPriceCache(provider Provider, opts ...CacheOption) *PriceCache {
	cache := &PriceCache{
		provider:   provider,
		lookback:   DefaultLookbackDays,
		minRequest: DefaultMinRequestDays,
		now:        time.Now,
		missing:    NewMissingRecorder(),
		entries:    make(map[string]*priceEntry),
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

// GetPrice returns the price of ticker on date. If there is no quote on date
// the most recent quote within the lookback window is returned. A quote after
// date is never used. When nothing qualifies the pair is recorded as missing
// and the returned error wraps ErrDataNotFound.
func (cache *PriceCache) GetPrice(ctx context.Context, ticker string, date time.Time) (*PricePoint, error) {
	ticker = normalizeTicker(ticker)
	date = common.Day(date)

	want := &Interval{
		Begin: date.AddDate(0, 0, -cache.lookback),
		End:   date,
	}

	if err := cache.ensure(ctx, ticker, want); err != nil {
		priceLookups.WithLabelValues("miss").Inc()
		cache.missing.Record(ticker, date)
		return nil, fmt.Errorf("%w: %s on %s: %w", ErrDataNotFound, ticker, date.Format("2006-01-02"), err)
	}

	cache.locker.RLock()
	entry := cache.entries[ticker]
	cache.locker.RUnlock()

	if entry != nil {
		points := entry.Points
		idx := sort.Search(len(points), func(i int) bool {
			return points[i].Date.After(date)
		})

		if idx > 0 {
			point := points[idx-1]
			if !point.Date.Before(want.Begin) {
				if point.Date.Equal(date) {
					priceLookups.WithLabelValues("exact").Inc()
				} else {
					priceLookups.WithLabelValues("carry_forward").Inc()
				}
				return point, nil
			}
		}
	}

	priceLookups.WithLabelValues("miss").Inc()
	cache.missing.Record(ticker, date)
	return nil, fmt.Errorf("%w: %s on %s", ErrDataNotFound, ticker, date.Format("2006-01-02"))
}

// GetPricesBatch loads [begin, end] for every ticker with at most one provider
// call per ticker and returns the quotes in range in ascending date order. The
// lookback window before begin is loaded too so later GetPrice calls at begin
// can carry a price forward. Tickers whose provider call fails are absent from
// the result.
func (cache *PriceCache) GetPricesBatch(ctx context.Context, tickers []string, begin, end time.Time) (map[string][]*PricePoint, error) {
	begin = common.Day(begin)
	end = common.Day(end)
	if end.Before(begin) {
		return nil, fmt.Errorf("%w: %s > %s", ErrBeginAfterEnd, begin.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	res := make(map[string][]*PricePoint, len(tickers))
	for _, ticker := range uniqueTickers(tickers) {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		want := &Interval{
			Begin: begin.AddDate(0, 0, -cache.lookback),
			End:   end,
		}

		if err := cache.ensure(ctx, ticker, want); err != nil {
			log.Warn().Err(err).Str("Ticker", ticker).Time("Begin", begin).Time("End", end).Msg("could not load prices for ticker")
			continue
		}

		res[ticker] = cache.pointsBetween(ticker, begin, end)
	}

	return res, nil
}

// Preload populates the cache for every ticker over [begin, end]. Ranges that
// are already covered and fresh do not reach the provider.
func (cache *PriceCache) Preload(ctx context.Context, tickers []string, begin, end time.Time) error {
	begin = common.Day(begin)
	end = common.Day(end)
	if end.Before(begin) {
		return ErrBeginAfterEnd
	}

	var errs []error
	for _, ticker := range uniqueTickers(tickers) {
		want := &Interval{
			Begin: begin.AddDate(0, 0, -cache.lookback),
			End:   end,
		}
		if err := cache.ensure(ctx, ticker, want); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ticker, err))
		}
	}

	return errors.Join(errs...)
}

// Invalidate drops everything cached in-process for ticker
func (cache *PriceCache) Invalidate(ticker string) {
	cache.locker.Lock()
	defer cache.locker.Unlock()
	delete(cache.entries, normalizeTicker(ticker))
}

// Purge drops every in-process entry
func (cache *PriceCache) Purge() {
	cache.locker.Lock()
	defer cache.locker.Unlock()
	cache.entries = make(map[string]*priceEntry)
}

// Count returns the number of tickers in the cache
func (cache *PriceCache) Count() int {
	cache.locker.RLock()
	defer cache.locker.RUnlock()
	return len(cache.entries)
}

// Missing returns every (ticker, date) that could not be priced
func (cache *PriceCache) Missing() []Missing {
	return cache.missing.Items()
}

// MissingRecorder returns the recorder shared by this cache
func (cache *PriceCache) MissingRecorder() *MissingRecorder {
	return cache.missing
}

// Private Implementation

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

func uniqueTickers(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	res := make([]string, 0, len(tickers))
	for _, ticker := range tickers {
		ticker = normalizeTicker(ticker)
		if ticker == "" {
			continue
		}
		if _, ok := seen[ticker]; ok {
			continue
		}
		seen[ticker] = struct{}{}
		res = append(res, ticker)
	}
	return res
}

func (cache *PriceCache) fresh(entry *priceEntry) bool {
	return cache.ttl <= 0 || cache.now().Sub(entry.LoadedAt) <= cache.ttl
}

func (cache *PriceCache) covers(ticker string, want *Interval) bool {
	cache.locker.RLock()
	defer cache.locker.RUnlock()

	entry, ok := cache.entries[ticker]
	if !ok || !cache.fresh(entry) {
		return false
	}
	return covered(entry.Covered, want)
}

// ensure makes sure want is covered for ticker. Population of a ticker is
// serialized; callers that joined another caller's flight re-check their own
// range afterwards.
func (cache *PriceCache) ensure(ctx context.Context, ticker string, want *Interval) error {
	if err := want.Valid(); err != nil {
		return err
	}

	for attempt := 0; attempt < 3; attempt++ {
		if cache.covers(ticker, want) {
			return nil
		}

		_, err, _ := cache.group.Do(ticker, func() (interface{}, error) {
			if cache.covers(ticker, want) {
				return nil, nil
			}
			return nil, cache.populate(ctx, ticker, want)
		})
		if err != nil {
			return err
		}
	}

	if cache.covers(ticker, want) {
		return nil
	}
	return fmt.Errorf("%w: %s could not be populated", ErrDataNotFound, ticker)
}

func (cache *PriceCache) populate(ctx context.Context, ticker string, want *Interval) error {
	subLog := log.With().Str("Ticker", ticker).Object("Want", want).Logger()

	cache.locker.RLock()
	entry := cache.entries[ticker]
	cache.locker.RUnlock()

	if entry != nil && !cache.fresh(entry) {
		subLog.Debug().Time("LoadedAt", entry.LoadedAt).Msg("cache entry is stale")
		entry = nil
	}

	if entry == nil && cache.store != nil {
		if stored := cache.loadBlob(ctx, ticker); stored != nil {
			cache.install(ticker, stored)
			if covered(stored.Covered, want) {
				return nil
			}
			entry = stored
		}
	}

	if cache.provider == nil {
		return ErrNoProvider
	}

	need := want
	if entry != nil {
		if gap := uncovered(entry.Covered, want); gap != nil {
			need = gap
		}
	}

	fetch := cache.fetchInterval(need)
	subLog.Debug().Object("Fetch", fetch).Msg("fetching prices from provider")

	points, err := cache.provider.Fetch(ctx, ticker, fetch.Begin, fetch.End)
	if err != nil {
		providerFetches.WithLabelValues("error").Inc()
		subLog.Error().Stack().Err(err).Msg("price provider fetch failed")
		return err
	}
	providerFetches.WithLabelValues("ok").Inc()

	updated := &priceEntry{
		LoadedAt: cache.now(),
	}
	if entry != nil {
		updated.LoadedAt = entry.LoadedAt
		updated.Points = entry.Points
		updated.Covered = entry.Covered
	}
	updated.Points = mergePoints(updated.Points, normalizePoints(ticker, points, fetch))
	updated.Covered = mergeInterval(updated.Covered, fetch)

	cache.install(ticker, updated)

	if cache.store != nil {
		cache.saveBlob(ctx, ticker, updated)
	}

	return nil
}

// fetchInterval widens want, the part of a request that is not cached yet,
// to the minimum request span without reaching past today
func (cache *PriceCache) fetchInterval(want *Interval) *Interval {
	fetch := &Interval{Begin: want.Begin, End: want.End}
	widened := want.Begin.AddDate(0, 0, cache.minRequest)
	today := common.Day(cache.now())
	if widened.After(today) {
		widened = today
	}
	if widened.After(fetch.End) {
		fetch.End = widened
	}
	return fetch
}

func (cache *PriceCache) install(ticker string, entry *priceEntry) {
	cache.locker.Lock()
	defer cache.locker.Unlock()
	cache.entries[ticker] = entry
}

func (cache *PriceCache) pointsBetween(ticker string, begin, end time.Time) []*PricePoint {
	cache.locker.RLock()
	entry := cache.entries[ticker]
	cache.locker.RUnlock()

	if entry == nil {
		return []*PricePoint{}
	}

	points := entry.Points
	first := sort.Search(len(points), func(i int) bool {
		return !points[i].Date.Before(begin)
	})
	last := sort.Search(len(points), func(i int) bool {
		return points[i].Date.After(end)
	})

	res := make([]*PricePoint, last-first)
	copy(res, points[first:last])
	return res
}

func (cache *PriceCache) loadBlob(ctx context.Context, ticker string) *priceEntry {
	raw, err := cache.store.Get(ctx, blobKeyPrefix+ticker)
	if err != nil {
		if !errors.Is(err, common.ErrCacheMiss) {
			log.Warn().Err(err).Str("Ticker", ticker).Msg("could not read prices from blob store")
		}
		blobStoreLoads.WithLabelValues("miss").Inc()
		return nil
	}

	entry := &priceEntry{}
	if err := json.Unmarshal(raw, entry); err != nil {
		log.Warn().Err(err).Str("Ticker", ticker).Msg("could not decode prices from blob store")
		blobStoreLoads.WithLabelValues("miss").Inc()
		return nil
	}

	if !cache.fresh(entry) {
		blobStoreLoads.WithLabelValues("stale").Inc()
		return nil
	}

	// dates round trip as RFC 3339; bring them back to the reference timezone
	for _, point := range entry.Points {
		point.Date = common.Day(point.Date)
	}
	for _, interval := range entry.Covered {
		interval.Begin = common.Day(interval.Begin)
		interval.End = common.Day(interval.End)
	}

	blobStoreLoads.WithLabelValues("hit").Inc()
	return entry
}

func (cache *PriceCache) saveBlob(ctx context.Context, ticker string, entry *priceEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		log.Warn().Err(err).Str("Ticker", ticker).Msg("could not encode prices for blob store")
		return
	}
	if err := cache.store.Set(ctx, blobKeyPrefix+ticker, raw); err != nil {
		log.Warn().Err(err).Str("Ticker", ticker).Msg("could not write prices to blob store")
	}
}

// normalizePoints copies the provider's points for ticker inside fetch,
// truncated to days and sorted ascending
func normalizePoints(ticker string, points []*PricePoint, fetch *Interval) []*PricePoint {
	res := make([]*PricePoint, 0, len(points))
	for _, point := range points {
		if point == nil {
			continue
		}
		cp := *point
		cp.Ticker = ticker
		cp.Date = common.Day(point.Date)
		if cp.Date.Before(fetch.Begin) || cp.Date.After(fetch.End) {
			continue
		}
		res = append(res, &cp)
	}

	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Date.Before(res[j].Date)
	})
	return res
}

// mergePoints returns a new sorted slice holding one point per date; points
// from incoming replace existing points on the same date
func mergePoints(existing, incoming []*PricePoint) []*PricePoint {
	res := make([]*PricePoint, 0, len(existing)+len(incoming))
	ii, jj := 0, 0
	for ii < len(existing) || jj < len(incoming) {
		var next *PricePoint
		switch {
		case jj >= len(incoming):
			next = existing[ii]
			ii++
		case ii >= len(existing):
			next = incoming[jj]
			jj++
		case existing[ii].Date.Before(incoming[jj].Date):
			next = existing[ii]
			ii++
		case incoming[jj].Date.Before(existing[ii].Date):
			next = incoming[jj]
			jj++
		default:
			next = incoming[jj]
			ii++
			jj++
		}

		if n := len(res); n > 0 && res[n-1].Date.Equal(next.Date) {
			res[n-1] = next
			continue
		}
		res = append(res, next)
	}
	return res
}
