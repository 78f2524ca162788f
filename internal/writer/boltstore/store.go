// Package boltstore keeps a bounded history of analysis runs in a bbolt
// database.
package boltstore

import (
	"Go2NetProfile/internal/codec"
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/factory"
	"Go2NetProfile/internal/model"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const (
	defaultPath      = "data/profiles.db"
	defaultRetention = 30
	keyLayout        = "20060102T150405.000000000Z"
)

var (
	bucketRuns = []byte("runs")
	bucketMeta = []byte("meta")
	keyLatest  = []byte("latest")
)

func init() {
	factory.RegisterWriter("bolt", func(def config.WriterDef, logger *zap.Logger) (model.Writer, error) {
		return Open(def.Bolt, logger)
	})
}

// RunInfo identifies one stored run.
type RunInfo struct {
	Key         string
	RunID       string
	GeneratedAt time.Time
}

// Store is a model.Writer that appends every snapshot to the runs bucket in
// a single transaction and moves the latest pointer with it.
type Store struct {
	db        *bbolt.DB
	retention int
	logger    *zap.Logger
}

// Open opens or creates the database file.
func Open(cfg config.BoltConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := cfg.Path
	if path == "" {
		path = defaultPath
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Store{db: db, retention: retention, logger: logger.Named("boltstore")}, nil
}

// Name implements model.Writer.
func (s *Store) Name() string {
	return "bolt"
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Write implements model.Writer. Runs beyond the retention limit are
// removed oldest first in the same transaction.
func (s *Store) Write(ctx context.Context, snapshot *model.Snapshot) error {
	data, err := codec.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	key := []byte(runKey(snapshot))

	var pruned int
	err = s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket(bucketRuns)
		if err := runs.Put(key, data); err != nil {
			return err
		}
		if err := tx.Bucket(bucketMeta).Put(keyLatest, key); err != nil {
			return err
		}

		c := runs.Cursor()
		count := 0
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			count++
		}
		excess := count - s.retention
		if excess <= 0 {
			return nil
		}
		var stale [][]byte
		for k, _ := c.First(); k != nil && len(stale) < excess; k, _ = c.Next() {
			if string(k) != string(key) {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if err := runs.Delete(k); err != nil {
				return err
			}
		}
		pruned = len(stale)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}

	s.logger.Info("stored run",
		zap.String("key", string(key)),
		zap.Int("users", len(snapshot.Profiles)),
		zap.Int("pruned", pruned))
	return nil
}

// LoadLatest implements model.SnapshotReader.
func (s *Store) LoadLatest(_ context.Context) (*model.Snapshot, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket(bucketMeta).Get(keyLatest)
		if key == nil {
			return model.ErrNoSnapshot
		}
		v := tx.Bucket(bucketRuns).Get(key)
		if v == nil {
			return model.ErrNoSnapshot
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return codec.DecodeSnapshot(data)
}

// Runs lists the stored runs, oldest first.
func (s *Store) Runs() ([]RunInfo, error) {
	var runs []RunInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			snap, err := codec.DecodeSnapshot(v)
			if err != nil {
				return err
			}
			runs = append(runs, RunInfo{Key: string(k), RunID: snap.RunID, GeneratedAt: snap.GeneratedAt})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Get returns the run stored under key.
func (s *Store) Get(key string) (*model.Snapshot, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketRuns).Get([]byte(key))
		if v == nil {
			return fmt.Errorf("run %q: %w", key, model.ErrNoSnapshot)
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return codec.DecodeSnapshot(data)
}

// runKey sorts runs by generation time.
func runKey(s *model.Snapshot) string {
	return s.GeneratedAt.UTC().Format(keyLayout) + "_" + s.RunID
}
