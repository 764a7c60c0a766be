package memory

import (
	"context"

	"github.com/aussiebroadwan/licensor/internal/license/store"
)

type txStore struct {
	s    *Store
	ctx  context.Context
	doc  Document
	done bool
}

func (t *txStore) Commit() error {
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	defer t.s.unlock()

	if t.s.persist != nil {
		if err := t.s.persist(t.ctx, t.doc); err != nil {
			return err
		}
	}
	t.s.doc = t.doc
	return nil
}

func (t *txStore) Rollback() error {
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	t.s.unlock()
	return nil
}

func (t *txStore) Licenses() store.Licenses { return NewLicenses(&t.doc) }

func (t *txStore) Close() error { return nil } // the outer store stays open

func (t *txStore) Ping(context.Context) error { return nil }

func (t *txStore) Tx(context.Context) (store.Tx, error) {
	return nil, store.ErrTxDone
}

func (t *txStore) WithTx(context.Context, func(tx store.Tx) error) error {
	return store.ErrTxDone
}

func (t *txStore) ApplyMigrations() error { return nil }
