package redis

import (
	"context"

	"github.com/aussiebroadwan/licensor/internal/license/store"
	"github.com/aussiebroadwan/licensor/internal/license/store/drivers/memory"
)

type txStore struct {
	s    *Store
	ctx  context.Context
	raw  []byte
	doc  memory.Document
	done bool
}

// Commit returns store.ErrConflict when the document changed since the
// transaction started.
func (t *txStore) Commit() error {
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	defer t.s.unlock()

	return t.s.commit(t.ctx, t.raw, t.doc)
}

func (t *txStore) Rollback() error {
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	t.s.unlock()
	return nil
}

func (t *txStore) Licenses() store.Licenses { return memory.NewLicenses(&t.doc) }

func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(context.Context) error { return nil }

func (t *txStore) Tx(context.Context) (store.Tx, error) {
	return nil, store.ErrTxDone
}

func (t *txStore) WithTx(context.Context, func(tx store.Tx) error) error {
	return store.ErrTxDone
}

func (t *txStore) ApplyMigrations() error { return nil }
