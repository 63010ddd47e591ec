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

package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pierrec/lz4/v4"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"github.com/spf13/viper"
)

// CacheConfig configures a two level blob cache
type CacheConfig struct {
	// LocalSize is the number of entries held in the in-process LRU
	LocalSize int

	// RedisURL enables the shared second level when non-empty
	RedisURL string

	// TTL is the expiration of redis entries; 0 means no expiration
	TTL time.Duration
}

// Cache stores lz4 compressed blobs in an in-process LRU backed by an
// optional redis instance. Redis calls go through a circuit breaker so an
// unavailable redis degrades to local-only caching.
type Cache struct {
	local *lru.Cache
	rdb   *redis.Client
	cb    *gobreaker.CircuitBreaker
	ttl   time.Duration
}

// NewCache creates a cache from the given configuration
func NewCache(cfg CacheConfig) (*Cache, error) {
	if cfg.LocalSize <= 0 {
		return nil, fmt.Errorf("%w: local size must be positive", ErrInvalidCacheCfg)
	}

	local, err := lru.New(cfg.LocalSize)
	if err != nil {
		log.Error().Err(err).Msg("could not create LRU cache")
		return nil, err
	}

	c := &Cache{
		local: local,
		ttl:   cfg.TTL,
	}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Error().Err(err).Msg("could not parse redis URL")
			return nil, err
		}

		c.rdb = redis.NewClient(opt)
		c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "redis-cache",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 10 && failureRatio >= 0.6
			},
		})
	}

	return c, nil
}

// NewCacheFromConfig builds a cache from the cache.* viper settings
func NewCacheFromConfig() (*Cache, error) {
	cfg := CacheConfig{
		LocalSize: viper.GetInt("cache.local_size"),
		TTL:       time.Duration(viper.GetInt("cache.ttl")) * time.Second,
	}

	if viper.GetBool("cache.redis") {
		cfg.RedisURL = viper.GetString("cache.redis_url")
	}

	return NewCache(cfg)
}

// Set compresses b and stores it under key in every configured level
func (c *Cache) Set(ctx context.Context, key string, b []byte) error {
	compressed, err := compress(b)
	if err != nil {
		return err
	}
	c.local.Add(key, compressed)

	if c.rdb == nil {
		return nil
	}

	_, err = c.cb.Execute(func() (interface{}, error) {
		return nil, c.rdb.Set(ctx, key, compressed, c.ttl).Err()
	})
	if err != nil {
		log.Warn().Err(err).Str("Key", key).Msg("could not write to redis")
	}
	return err
}

// Get returns the decompressed value stored under key or ErrCacheMiss
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if val, ok := c.local.Get(key); ok {
		return decompress(val.([]byte))
	}

	if c.rdb == nil {
		return nil, ErrCacheMiss
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		val, err := c.rdb.GetEx(ctx, key, c.ttl).Bytes()
		if errors.Is(err, redis.Nil) {
			// a miss is not a failure of redis
			return nil, nil
		}
		return val, err
	})
	if err != nil {
		log.Warn().Err(err).Str("Key", key).Msg("could not read from redis")
		return nil, err
	}

	if res == nil {
		return nil, ErrCacheMiss
	}

	compressed := res.([]byte)
	c.local.Add(key, compressed)
	return decompress(compressed)
}

// Delete removes key from every level
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.local.Remove(key)
	if c.rdb == nil {
		return nil
	}
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.rdb.Del(ctx, key).Err()
	})
	return err
}

// Len returns the number of entries in the local level
func (c *Cache) Len() int {
	return c.local.Len()
}

// Close releases the redis connection if one is open
func (c *Cache) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

func compress(in []byte) ([]byte, error) {
	out := &bytes.Buffer{}
	zw := lz4.NewWriter(out)
	if _, err := zw.Write(in); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func decompress(in []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(in)))
}
