// Package file persists licenses as a single JSON document on disk, in the
// `{"licenses": [...]}` layout older deployments already have in db.json.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aussiebroadwan/licensor/internal/license/store/drivers/memory"
	"github.com/aussiebroadwan/licensor/pkg/slogx"
)

// Store is an in-memory store that rewrites the whole file on every commit.
// A commit is visible only after the new file has been renamed into place.
type Store struct {
	*memory.Store

	path string
}

// NewStore loads path, creating it when missing. Rows that do not decode
// are logged and kept verbatim in the file. A file that cannot be read or is
// not JSON at all is moved aside to <path>.corrupt-<unix> and the store
// starts empty; only failing to move it aside is an error.
func NewStore(ctx context.Context, path string) (*Store, error) {
	path = filepath.Clean(path)
	log := slogx.FromContext(ctx).With("store_file", path)

	doc, rowErrs, err := load(path)
	for _, re := range rowErrs {
		log.Warn("license row unreadable, kept as is", "row", re.Index, "err", re.Err)
	}
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Info("store file not found, starting empty")
		doc = memory.Document{}
	case err != nil:
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if rerr := os.Rename(path, aside); rerr != nil {
			return nil, fmt.Errorf("file store: load %s: %w (move aside: %v)", path, err, rerr)
		}
		log.Error("store file unreadable, moved aside and starting empty",
			"err", err,
			"moved_to", aside,
		)
		doc = memory.Document{}
	}

	changed := doc.Normalize()

	s := &Store{path: path}
	s.Store = memory.New(doc, s.write)

	// Write back ids assigned to legacy rows, and create the file if it was
	// missing so permission problems show up at startup.
	if _, statErr := os.Stat(path); changed || statErr != nil {
		if err := writeAtomic(path, doc); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Ping checks the backing file is still present.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.Store.Ping(ctx); err != nil {
		return err
	}
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("file store: %w", err)
	}
	return nil
}

func (s *Store) write(_ context.Context, doc memory.Document) error {
	return writeAtomic(s.path, doc)
}

func load(path string) (memory.Document, []memory.RowError, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return memory.Document{}, nil, err
	}

	doc, rowErrs, err := memory.DecodeDocument(raw)
	if err != nil {
		return memory.Document{}, nil, fmt.Errorf("decode: %w", err)
	}
	return doc, rowErrs, nil
}

// writeAtomic replaces path with doc through a synced temp file in the same
// directory, so readers see either the old or the new file, never a mix.
func writeAtomic(path string, doc memory.Document) (err error) {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: encode: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("file store: create temp: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(raw); err != nil {
		return fmt.Errorf("file store: write: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("file store: sync: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("file store: close: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("file store: chmod: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("file store: rename: %w", err)
	}

	syncDir(dir)
	return nil
}

// syncDir flushes the rename to disk where the platform allows it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
