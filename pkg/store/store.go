// Package store is the authoritative Message Store on pebble. It owns the
// only write path: every mutation runs the moderation gate against the
// stored roster, commits atomically, and returns the committed rows for the
// caller to broadcast.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"groupchat/pkg/models"
	"groupchat/pkg/state/logger"
	"groupchat/pkg/timeutil"
)

var (
	ErrNotFound       = models.ErrNotFound
	ErrExists         = errors.New("already exists")
	ErrInvalid        = models.ErrInvalid
	ErrContentTooLong = fmt.Errorf("%w: content too long", ErrInvalid)
	ErrEmptyMessage   = fmt.Errorf("%w: message needs content or an image", ErrInvalid)
	ErrInvalidReply   = fmt.Errorf("%w: reply target is not in this channel", ErrInvalid)
	ErrClosed         = errors.New("store closed")
)

const (
	DefaultMaxContentRunes = 2000
	DefaultHistoryPageSize = 50
	DefaultHistoryMaxPage  = 200
)

// Options tunes validation limits and the time source.
type Options struct {
	MaxContentRunes int
	HistoryPageSize int
	HistoryMaxPage  int
	Clock           timeutil.Clock
	// FS overrides the pebble filesystem; tests pass vfs.NewMem().
	FS vfs.FS
}

func (o *Options) applyDefaults() {
	if o.MaxContentRunes <= 0 {
		o.MaxContentRunes = DefaultMaxContentRunes
	}
	if o.HistoryPageSize <= 0 {
		o.HistoryPageSize = DefaultHistoryPageSize
	}
	if o.HistoryMaxPage <= 0 {
		o.HistoryMaxPage = DefaultHistoryMaxPage
	}
	if o.HistoryPageSize > o.HistoryMaxPage {
		o.HistoryPageSize = o.HistoryMaxPage
	}
	if o.Clock == nil {
		o.Clock = timeutil.System
	}
}

type Store struct {
	db   *pebble.DB
	path string
	opts Options

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Open opens or creates the database at path.
func Open(path string, opts Options) (*Store, error) {
	opts.applyDefaults()
	po := &pebble.Options{}
	if opts.FS != nil {
		po.FS = opts.FS
	}
	db, err := pebble.Open(path, po)
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("store_opened", "path", path)
	return &Store{db: db, path: path, opts: opts, locks: make(map[string]*sync.Mutex)}, nil
}

// OpenInMemory opens a throwaway store backed by pebble's memory filesystem.
func OpenInMemory(opts Options) (*Store, error) {
	opts.FS = vfs.NewMem()
	return Open("", opts)
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	return nil
}

// Ready reports whether the store is open.
func (s *Store) Ready() bool {
	return s.db != nil
}

func (s *Store) Options() Options { return s.opts }

func (s *Store) now() time.Time { return s.opts.Clock.Now() }

// lock returns the mutex for a row key (creates if needed).
func (s *Store) lock(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if l, ok := s.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[key] = l
	return l
}

func (s *Store) check(ctx context.Context) error {
	if s.db == nil {
		return ErrClosed
	}
	return ctx.Err()
}

// getJSON loads key into v. A missing key returns ErrNotFound.
func (s *Store) getJSON(key string, v any) error {
	raw, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			logger.Debug("get_key_missing", "key", key)
			return ErrNotFound
		}
		logger.Error("get_key_failed", "key", key, "error", err)
		return err
	}
	defer closer.Close()
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) exists(key string) (bool, error) {
	_, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	closer.Close()
	return true, nil
}

func setJSON(b *pebble.Batch, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Set([]byte(key), data, nil)
}

// commit applies a batch with fsync.
func (s *Store) commit(b *pebble.Batch) error {
	defer b.Close()
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("pebble_apply_batch_failed", "error", err)
		return err
	}
	return nil
}

// scanPrefix calls fn for every key with prefix in ascending order until fn
// returns false.
func (s *Store) scanPrefix(prefix string, fn func(key, value []byte) bool) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}
