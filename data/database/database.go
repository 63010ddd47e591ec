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

package database

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// PgxIface is the subset of a pgx pool or connection used to start transactions
type PgxIface interface {
	Begin(context.Context) (pgx.Tx, error)
}

var (
	ErrNoPool = errors.New("database pool has not been configured")
)

var (
	pool             PgxIface
	openTransactions = make(map[string]string)
	trxLocker        sync.Mutex
)

// TrackedTx is a pgx.Tx that is recorded in the open transaction log until it
// is committed or rolled back
type TrackedTx struct {
	pgx.Tx
	id string
}

// ID returns the identifier of the transaction in the open transaction log
func (t *TrackedTx) ID() string {
	return t.id
}

func (t *TrackedTx) Commit(ctx context.Context) error {
	defer forget(t.id)
	return t.Tx.Commit(ctx)
}

func (t *TrackedTx) Rollback(ctx context.Context) error {
	defer forget(t.id)
	return t.Tx.Rollback(ctx)
}

func forget(id string) {
	trxLocker.Lock()
	delete(openTransactions, id)
	trxLocker.Unlock()
}

// SetPool sets the pool used for new transactions and resets the transaction log
func SetPool(myPool PgxIface) {
	trxLocker.Lock()
	defer trxLocker.Unlock()
	openTransactions = make(map[string]string)
	pool = myPool
}

// Connect opens a pgx pool to database.url and installs it
func Connect(ctx context.Context) error {
	myPool, err := pgxpool.Connect(ctx, viper.GetString("database.url"))
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not connect to pool")
		return err
	}
	if err = myPool.Ping(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not ping database server")
		return err
	}
	SetPool(myPool)
	return nil
}

// Configured reports whether a pool has been installed
func Configured() bool {
	return pool != nil
}

// LogOpenTransactions writes an INFO log for each open transaction
func LogOpenTransactions() {
	trxLocker.Lock()
	defer trxLocker.Unlock()
	for k, v := range openTransactions {
		log.Info().Str("TrxId", k).Str("Caller", v).Msg("open transaction")
	}
}

// OpenTransactions returns the number of transactions that have not finished
func OpenTransactions() int {
	trxLocker.Lock()
	defer trxLocker.Unlock()
	return len(openTransactions)
}

// Begin starts a transaction and records its caller in the open transaction log
func Begin(ctx context.Context) (*TrackedTx, error) {
	if pool == nil {
		return nil, ErrNoPool
	}

	trx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}

	_, file, lineno, ok := runtime.Caller(1)
	caller := fmt.Sprintf("[%v] %s:%d", ok, file, lineno)
	trxID := uuid.New().String()

	trxLocker.Lock()
	openTransactions[trxID] = caller
	trxLocker.Unlock()

	return &TrackedTx{
		Tx: trx,
		id: trxID,
	}, nil
}
