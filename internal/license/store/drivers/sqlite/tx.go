package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/licensor/internal/license/store"
)

type txStore struct {
	tx *sql.Tx
	q  *queries
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{
		tx: tx,
		q:  &queries{db: tx},
	}
}

func (t *txStore) Commit() error   { return mapTxDone(t.tx.Commit()) }
func (t *txStore) Rollback() error { return mapTxDone(t.tx.Rollback()) }

func (t *txStore) Close() error { return nil } // caller will commit/rollback and outer DB stays open

// Ping is a no-op for transactions; the connection is already held.
func (t *txStore) Ping(context.Context) error { return nil }

// Nested tx not supported; could emulate with SAVEPOINT if needed.
func (t *txStore) Tx(context.Context) (store.Tx, error) {
	return nil, store.ErrTxDone
}

func (t *txStore) WithTx(context.Context, func(tx store.Tx) error) error {
	return store.ErrTxDone
}

func (t *txStore) Licenses() store.Licenses { return &licensesRepo{q: t.q} }

func (t *txStore) ApplyMigrations() error { return nil } // migrations are applied before starting a tx
