package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const (
	artifactPrefix = "ckpt/"
	recordPrefix   = "meta/"

	badgerScheme = "badger:"
)

// BadgerConfig configures a BadgerStore
type BadgerConfig struct {
	// Path is the database directory. It is ignored when InMemory is
	// true.
	Path     string
	InMemory bool

	// SyncWrites makes every save durable before it returns
	SyncWrites bool

	// Logger receives badger's internal logs. If nil, they are
	// discarded.
	Logger *slog.Logger
}

// BadgerStore stores snapshots in an embedded badger database. The
// artifact and record of a snapshot are keyed by ckpt/<name> and
// meta/<name> and are written in a single transaction.
type BadgerStore struct {
	db *badger.DB
}

// badgerLogger adapts a slog.Logger to badger's Logger interface
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// OpenBadgerStore opens, or creates, a BadgerStore
func OpenBadgerStore(c BadgerConfig) (*BadgerStore, error) {
	var opts badger.Options
	if c.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if c.Path == "" {
			return nil, fmt.Errorf("openbadgerstore: no database path")
		}
		if err := os.MkdirAll(c.Path, 0o750); err != nil {
			return nil, fmt.Errorf("openbadgerstore: could not create %v: %v",
				c.Path, err)
		}
		opts = badger.DefaultOptions(c.Path)
	}
	opts = opts.WithSyncWrites(c.SyncWrites).WithNumVersionsToKeep(1)
	if c.Logger != nil {
		opts = opts.WithLogger(badgerLogger{logger: c.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("openbadgerstore: %v", err)
	}
	return &BadgerStore{db: db}, nil
}

// Put implements the Store interface
func (b *BadgerStore) Put(rec Record, artifact []byte) (string, error) {
	rec.Location = badgerScheme + rec.Name
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("put: could not encode record: %v", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(artifactPrefix+rec.Name), artifact); err != nil {
			return err
		}
		return txn.Set([]byte(recordPrefix+rec.Name), data)
	})
	if err != nil {
		return "", fmt.Errorf("put: %v", err)
	}
	return rec.Location, nil
}

// Get implements the Store interface
func (b *BadgerStore) Get(name string) ([]byte, Record, bool, error) {
	var artifact []byte
	var rec Record
	found := true

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(artifactPrefix + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			found = false
			return nil
		} else if err != nil {
			return err
		}
		if artifact, err = item.ValueCopy(nil); err != nil {
			return err
		}

		item, err = txn.Get([]byte(recordPrefix + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: no metadata record", ErrCorrupt)
		} else if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("%w: could not decode record: %v",
					ErrCorrupt, err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, Record{}, false, fmt.Errorf("get: %w", err)
	}
	if !found {
		return nil, Record{}, false, nil
	}
	return artifact, rec, true, nil
}

// Resolve implements the Store interface. Locations have the form
// badger:<name>. File locations are never stored here.
func (b *BadgerStore) Resolve(nameOrLocation string) (string, error) {
	if strings.HasSuffix(nameOrLocation, artifactExt) {
		return "", fmt.Errorf("resolve: %v: %w", nameOrLocation,
			fs.ErrNotExist)
	}
	name := strings.TrimPrefix(nameOrLocation, badgerScheme)
	return name, ValidateName(name)
}

// Records implements the Store interface. Undecodable records are
// skipped.
func (b *BadgerStore) Records() ([]Record, error) {
	var records []Record
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			})
			if err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("records: %v", err)
	}
	return records, nil
}

// Delete implements the Store interface
func (b *BadgerStore) Delete(name string) (bool, error) {
	deleted := false
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, key := range []string{artifactPrefix + name, recordPrefix + name} {
			_, err := txn.Get([]byte(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			} else if err != nil {
				return err
			}
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
			deleted = true
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete: %v", err)
	}
	return deleted, nil
}

// Close closes the underlying database
func (b *BadgerStore) Close() error {
	return b.db.Close()
}
