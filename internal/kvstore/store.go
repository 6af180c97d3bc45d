// Package kvstore keeps version history in an embedded BadgerDB.
//
// Keys are laid out per owner so that a prefix scan walks one history in
// version order:
//
//	'v' | len(kind) | kind | len(id) | id | number (big endian)
//
// Values are JSON documents holding the creation time and the encoded
// changes.
package kvstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/vestalhq/vestal/internal/versioning"
)

const versionPrefix byte = 'v'

// Config holds configuration for a badger-backed store.
type Config struct {
	// Path is the directory for badger files. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives badger's internal messages. A nil logger silences them.
	Logger *zerolog.Logger
}

// Store implements versioning.Store on top of badger.
type Store struct {
	db *badger.DB
}

var _ versioning.Store = (*Store)(nil)

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("kvstore: path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{log: cfg.Logger.With().Str("component", "badger").Logger()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type storedVersion struct {
	CreatedAt time.Time       `json:"created_at"`
	Changes   json.RawMessage `json:"changes,omitempty"`
}

func (s *Store) AppendVersion(ctx context.Context, owner versioning.OwnerRef, number int64, changes *versioning.Changes, createdAt time.Time) (*versioning.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := versioning.EncodeChanges(changes)
	if err != nil {
		return nil, fmt.Errorf("encode changes: %w", err)
	}
	value, err := json.Marshal(storedVersion{CreatedAt: createdAt.UTC(), Changes: payload})
	if err != nil {
		return nil, fmt.Errorf("encode version: %w", err)
	}

	key := versionKey(owner, number)
	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return &versioning.ConflictError{Owner: owner, Number: number}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(key, value)
	})
	if errors.Is(err, badger.ErrConflict) {
		return nil, &versioning.ConflictError{Owner: owner, Number: number}
	}
	if err != nil {
		if versioning.IsConflict(err) {
			return nil, err
		}
		return nil, fmt.Errorf("append version: %w", err)
	}

	return &versioning.Version{
		Owner:     owner,
		Number:    number,
		CreatedAt: createdAt.UTC(),
		Changes:   changes,
	}, nil
}

func (s *Store) MaxVersionNumber(ctx context.Context, owner versioning.OwnerRef) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	prefix := ownerPrefix(owner)
	var number int64
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Reverse: true, Prefix: prefix})
		defer it.Close()

		// In reverse mode Seek lands on the largest key <= the seek key.
		it.Seek(versionKey(owner, -1))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		n, ok := numberOf(it.Item().Key(), prefix)
		if !ok {
			return fmt.Errorf("malformed key %q", it.Item().Key())
		}
		number = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("max version number: %w", err)
	}
	return number, nil
}

func (s *Store) VersionsInRange(ctx context.Context, owner versioning.OwnerRef, low, high int64) ([]versioning.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make([]versioning.Version, 0)
	if high < low || high < 1 {
		return result, nil
	}
	if low < 1 {
		low = 1
	}

	prefix := ownerPrefix(owner)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 16, Prefix: prefix})
		defer it.Close()

		for it.Seek(versionKey(owner, low)); it.ValidForPrefix(prefix); it.Next() {
			v, err := decodeItem(it.Item(), owner, prefix)
			if err != nil {
				return err
			}
			if v.Number > high {
				break
			}
			result = append(result, *v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("versions in range: %w", err)
	}
	return result, nil
}

// LatestVersionAtOrBefore walks the history newest first and returns the
// first version created no later than at.
func (s *Store) LatestVersionAtOrBefore(ctx context.Context, owner versioning.OwnerRef, at time.Time) (*versioning.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := ownerPrefix(owner)
	var found *versioning.Version
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Reverse: true, Prefix: prefix})
		defer it.Close()

		for it.Seek(versionKey(owner, -1)); it.ValidForPrefix(prefix); it.Next() {
			v, err := decodeItem(it.Item(), owner, prefix)
			if err != nil {
				return err
			}
			if !v.CreatedAt.After(at) {
				found = v
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("latest version at %s: %w", at.Format(time.RFC3339), err)
	}
	return found, nil
}

func (s *Store) DeleteAllVersions(ctx context.Context, owner versioning.OwnerRef) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	prefix := ownerPrefix(owner)
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("list versions: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("delete versions: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("delete versions: %w", err)
	}
	return int64(len(keys)), nil
}

func ownerPrefix(owner versioning.OwnerRef) []byte {
	buf := make([]byte, 0, 1+4+len(owner.Kind)+4+len(owner.ID))
	buf = append(buf, versionPrefix)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(owner.Kind)))
	buf = append(buf, owner.Kind...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(owner.ID)))
	buf = append(buf, owner.ID...)
	return buf
}

// versionKey appends the number as an unsigned big endian integer so byte
// order matches numeric order. -1 becomes the largest possible suffix.
func versionKey(owner versioning.OwnerRef, number int64) []byte {
	return binary.BigEndian.AppendUint64(ownerPrefix(owner), uint64(number))
}

func numberOf(key, prefix []byte) (int64, bool) {
	if len(key) != len(prefix)+8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(key[len(prefix):])), true
}

func decodeItem(item *badger.Item, owner versioning.OwnerRef, prefix []byte) (*versioning.Version, error) {
	number, ok := numberOf(item.Key(), prefix)
	if !ok {
		return nil, fmt.Errorf("malformed key %q", item.Key())
	}

	var stored storedVersion
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &stored)
	})
	if err != nil {
		return nil, fmt.Errorf("decode version %d: %w", number, err)
	}

	changes, err := versioning.DecodeChanges(stored.Changes)
	if err != nil {
		return nil, fmt.Errorf("decode changes of version %d: %w", number, err)
	}

	return &versioning.Version{
		Owner:     owner,
		Number:    number,
		CreatedAt: stored.CreatedAt,
		Changes:   changes,
	}, nil
}

type badgerLogger struct {
	log zerolog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any)   { l.log.Error().Msgf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...any) { l.log.Warn().Msgf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...any)    { l.log.Debug().Msgf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...any)   { l.log.Trace().Msgf(format, args...) }
