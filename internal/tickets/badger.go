package tickets

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

const (
	recordPrefix = "incident/"
	seqKey       = "meta/seq"
	maxRetries   = 5
)

// BadgerConfig configures the durable store.
type BadgerConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger
	Clock      utils.Clock
}

// BadgerStore persists incident records as JSON in BadgerDB.
type BadgerStore struct {
	db    *badger.DB
	clock utils.Clock

	// writes are serialised so sequence allocation never conflicts
	writeMu sync.Mutex
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger opens or creates the store described by cfg.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("tickets: path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create ticket store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ticket store: %w", err)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &BadgerStore{db: db, clock: clock}, nil
}

func recordKey(id string) []byte {
	return []byte(recordPrefix + id)
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (s *BadgerStore) Create(_ context.Context, title, description string, priority models.Priority) (string, error) {
	var id string
	err := s.update(func(txn *badger.Txn) error {
		seq := uint64(firstID)
		item, err := txn.Get([]byte(seqKey))
		switch {
		case err == nil:
			if err := item.Value(func(v []byte) error {
				seq = binary.BigEndian.Uint64(v)
				return nil
			}); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		id = formatID(seq)
		next := make([]byte, 8)
		binary.BigEndian.PutUint64(next, seq+1)
		if err := txn.Set([]byte(seqKey), next); err != nil {
			return err
		}
		return putRecord(txn, newRecord(id, title, description, priority, s.clock.Now()))
	})
	if err != nil {
		return "", utils.NewAppError("tickets.create", "persist incident", err)
	}
	return id, nil
}

func (s *BadgerStore) Update(_ context.Context, id string, update models.TicketUpdate) error {
	return s.update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		if err := apply(&rec, update, s.clock.Now()); err != nil {
			return err
		}
		return putRecord(txn, rec)
	})
}

func (s *BadgerStore) Get(_ context.Context, id string) (models.IncidentRecord, error) {
	var rec models.IncidentRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, id)
		return err
	})
	return rec, err
}

func (s *BadgerStore) List(_ context.Context) ([]models.IncidentRecord, error) {
	out := make([]models.IncidentRecord, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec models.IncidentRecord
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRecords(out)
	return out, nil
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func getRecord(txn *badger.Txn, id string) (models.IncidentRecord, error) {
	var rec models.IncidentRecord
	item, err := txn.Get(recordKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, utils.NotFound("tickets.get", "ticket "+id)
	}
	if err != nil {
		return rec, err
	}
	err = item.Value(func(v []byte) error {
		return json.Unmarshal(v, &rec)
	})
	return rec, err
}

func putRecord(txn *badger.Txn, rec models.IncidentRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.ID, err)
	}
	return txn.Set(recordKey(rec.ID), data)
}
