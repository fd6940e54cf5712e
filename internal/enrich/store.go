// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package enrich

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/ipdrlens/internal/models"
)

const geoKeyPrefix = "geo:"

// GeoStore persists successful geolocation answers across restarts so a
// re-uploaded dataset does not spend provider quota again.
type GeoStore struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenGeoStore opens (or creates) a Badger database at path.
func OpenGeoStore(path string, ttl time.Duration) (*GeoStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for geolocation cache: %w", err)
	}
	return NewGeoStoreFromDB(db, ttl), nil
}

// NewGeoStoreFromDB wraps an already open database.
func NewGeoStoreFromDB(db *badger.DB, ttl time.Duration) *GeoStore {
	return &GeoStore{db: db, ttl: ttl}
}

// Get returns the stored location for ip. A missing or expired key is
// (nil, nil).
func (s *GeoStore) Get(ip string) (*models.Geolocation, error) {
	var geo *models.Geolocation
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(geoKeyPrefix + ip))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var g models.Geolocation
			if err := json.Unmarshal(val, &g); err != nil {
				return err
			}
			geo = &g
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read geolocation for %s: %w", ip, err)
	}
	return geo, nil
}

// Put stores geo under its IP address.
func (s *GeoStore) Put(geo *models.Geolocation) error {
	data, err := json.Marshal(geo)
	if err != nil {
		return fmt.Errorf("encode geolocation: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(geoKeyPrefix+geo.IPAddress), data)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
}

// gcDiscardRatio rewrites a value log file when half of it is garbage.
const gcDiscardRatio = 0.5

// RunGC rewrites value log files until Badger reports nothing left to
// reclaim. Expired entries only release disk space this way.
func (s *GeoStore) RunGC() (int, error) {
	rewritten := 0
	for {
		err := s.db.RunValueLogGC(gcDiscardRatio)
		switch {
		case err == nil:
			rewritten++
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrRejected), errors.Is(err, badger.ErrGCInMemoryMode):
			return rewritten, nil
		default:
			return rewritten, fmt.Errorf("badger value log gc: %w", err)
		}
	}
}

// Close closes the underlying database.
func (s *GeoStore) Close() error {
	return s.db.Close()
}
