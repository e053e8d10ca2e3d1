// Package checkpoint implements durable, named snapshots of trained
// models. A Manager encodes snapshots, verifies them on load, and
// answers queries over their metadata records; a Store persists them.
//
// Saving under an existing name replaces the previous snapshot. Saves,
// loads, and deletes of the same name are serialized by the Manager,
// so that concurrent saves under one name resolve to the last writer
// and never leave a mixed artifact and record behind.
package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "goplace",
	Subsystem: "checkpoint",
	Name:      "operations_total",
	Help:      "Checkpoint operations by operation and result",
}, []string{"op", "result"})

// Manager saves and loads Snapshots in a Store
type Manager struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger of a Manager
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock sets the function a Manager uses to timestamp snapshots
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager returns a Manager over store
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ValidateName returns an error wrapping ErrInvalidName if name cannot
// be used as a checkpoint name. Names may not end in the artifact
// extension, which marks a location.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.HasSuffix(name, artifactExt) ||
		strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// lock acquires the lock of a name and returns its release function
func (m *Manager) lock(name string) func() {
	m.mu.Lock()
	l, ok := m.locks[name]
	if !ok {
		l = &sync.Mutex{}
		m.locks[name] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (m *Manager) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operations.WithLabelValues(op, result).Inc()
}

// Save stores snapshot under name with the given metadata, replacing
// any snapshot previously saved under name, and returns its location.
// The snapshot's Timestamp and Metadata are set.
func (m *Manager) Save(name string, snapshot *Snapshot,
	metadata map[string]any) (location string, err error) {
	defer func() { m.observe("save", err) }()

	if err := ValidateName(name); err != nil {
		return "", &Error{Op: "save", Name: name, Err: err}
	}
	if snapshot == nil {
		return "", &Error{Op: "save", Name: name, Err: fmt.Errorf("nil " +
			"snapshot")}
	}

	snapshot.Timestamp = m.now().UTC()
	if metadata != nil {
		snapshot.Metadata = metadata
	}
	data, err := encode(snapshot)
	if err != nil {
		return "", &Error{Op: "save", Name: name, Err: err}
	}

	rec := Record{
		Name:      name,
		Timestamp: snapshot.Timestamp,
		Algorithm: snapshot.Algorithm,
		Episode:   snapshot.Episode,
		Epoch:     snapshot.Epoch,
		Reward:    snapshot.Reward,
		Loss:      snapshot.Loss,
		Checksum:  checksum(data),
		Size:      len(data),
		Metadata:  snapshot.Metadata,
	}

	unlock := m.lock(name)
	defer unlock()
	location, err = m.store.Put(rec, data)
	if err != nil {
		m.logger.Error("could not save checkpoint", "name", name,
			"error", err)
		return "", &Error{Op: "save", Name: name, Err: err}
	}

	m.logger.Info("saved checkpoint", "name", name, "location", location,
		"bytes", len(data))
	return location, nil
}

// Load returns the snapshot stored under a name or at a location
// returned by Save. If nothing is stored there, Load returns false and
// a nil error. A snapshot that does not match its record's checksum is
// reported as an error wrapping ErrCorrupt.
func (m *Manager) Load(nameOrLocation string) (snapshot *Snapshot,
	found bool, err error) {
	defer func() { m.observe("load", err) }()

	name, err := m.store.Resolve(nameOrLocation)
	if errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("checkpoint location not found", "location",
			nameOrLocation)
		return nil, false, nil
	} else if err != nil {
		return nil, false, &Error{Op: "load", Name: nameOrLocation, Err: err}
	}

	unlock := m.lock(name)
	data, rec, ok, err := m.store.Get(name)
	unlock()
	if err != nil {
		return nil, false, &Error{Op: "load", Name: name, Err: err}
	}
	if !ok {
		m.logger.Warn("checkpoint not found", "name", name)
		return nil, false, nil
	}

	if sum := checksum(data); sum != rec.Checksum {
		return nil, false, &Error{Op: "load", Name: name,
			Err: fmt.Errorf("%w: checksum %v does not match record %v",
				ErrCorrupt, sum, rec.Checksum)}
	}
	snapshot, err = decode(data)
	if err != nil {
		return nil, false, &Error{Op: "load", Name: name, Err: err}
	}

	m.logger.Info("loaded checkpoint", "name", name)
	return snapshot, true, nil
}

// List returns the records of all snapshots, newest first
func (m *Manager) List() ([]Record, error) {
	records, err := m.store.Records()
	if err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Name < records[j].Name
		}
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// Delete removes the snapshot stored under name and reports whether
// there was one. Deleting an absent snapshot is not an error.
func (m *Manager) Delete(name string) (deleted bool, err error) {
	defer func() { m.observe("delete", err) }()

	if err := ValidateName(name); err != nil {
		return false, &Error{Op: "delete", Name: name, Err: err}
	}

	unlock := m.lock(name)
	defer unlock()
	deleted, err = m.store.Delete(name)
	if err != nil {
		return false, &Error{Op: "delete", Name: name, Err: err}
	}
	if deleted {
		m.logger.Info("deleted checkpoint", "name", name)
	} else {
		m.logger.Warn("checkpoint not found", "name", name)
	}
	return deleted, nil
}

// Latest returns the newest record whose name starts with prefix. The
// boolean is false if there is none.
func (m *Manager) Latest(prefix string) (Record, bool, error) {
	records, err := m.List()
	if err != nil {
		return Record{}, false, err
	}
	for _, rec := range records {
		if strings.HasPrefix(rec.Name, prefix) {
			return rec, true, nil
		}
	}
	return Record{}, false, nil
}

// Best returns the record with the largest value of metric, or the
// smallest if maximize is false. Records without the metric are
// skipped; among equal values the newest record wins. The boolean is
// false if no record has the metric.
func (m *Manager) Best(metric string, maximize bool) (Record, bool, error) {
	records, err := m.List()
	if err != nil {
		return Record{}, false, err
	}

	var best Record
	var bestValue float64
	found := false
	for _, rec := range records {
		v, ok := rec.Metric(metric)
		if !ok {
			continue
		}
		if !found || (maximize && v > bestValue) ||
			(!maximize && v < bestValue) {
			best, bestValue, found = rec, v, true
		}
	}
	return best, found, nil
}

// Close closes the underlying Store
func (m *Manager) Close() error {
	return m.store.Close()
}
