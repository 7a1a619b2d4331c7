// Package ledger implements the dealership record store: three indexed logs
// (models, cars, sales) under one root directory, with the cross-log
// operations built on them.
package ledger

import (
	"errors"
	"os"
	"sync"

	"github.com/bibip/dealerdb/dealer"
	"github.com/bibip/dealerdb/dlog"
	"github.com/bibip/dealerdb/indexedlog"
)

// ErrNotFound is returned when a key is absent from an index or a join
// target is missing.
var ErrNotFound = indexedlog.ErrNotFound

// Store is a handle to one dealership ledger on disk. All operations go
// through the handle; there is no process-global state, so multiple
// independent stores can coexist (e.g. in tests).
//
// A mutex serializes every operation: mutations are read-modify-write of
// whole files, so the store assumes a single writer and no concurrent
// access from other processes.
type Store struct {
	rootDir string
	mu      sync.Mutex

	models *indexedlog.Log
	cars   *indexedlog.Log
	sales  *indexedlog.Log
}

// Open creates rootDir (with parents) if needed and returns a store handle.
// The log and index files themselves are created lazily on first write.
func Open(rootDir string) (*Store, error) {
	if rootDir == "" {
		return nil, errors.New("root directory is not set. For current directory, use '.'")
	}
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, err
	}
	dlog.Verbosef("ledger: opened store at %s\n", rootDir)
	return &Store{
		rootDir: rootDir,
		models:  indexedlog.New(rootDir, "models"),
		cars:    indexedlog.New(rootDir, "cars"),
		sales:   indexedlog.New(rootDir, "sales"),
	}, nil
}

// RootDir returns the directory holding the store's files.
func (s *Store) RootDir() string {
	return s.rootDir
}

// Close releases the handle. All state lives in the files, so there is
// nothing to flush; Close exists to anchor the open-use-close lifecycle.
func (s *Store) Close() error {
	return nil
}

// readAllRows reads a whole log into memory, one fields slice per line
// ordinal. Positions skipped by Scan (blank lines) stay nil so indexing by
// position lines up.
func (s *Store) readAllRows(l *indexedlog.Log) ([][]string, error) {
	var rows [][]string
	err := l.Scan(func(pos int, fields []string) error {
		for len(rows) < pos {
			rows = append(rows, nil)
		}
		rows = append(rows, fields)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// AddModel appends a model to the models log and its index. Returns the
// input unchanged as confirmation, not a fresh read-back.
func (s *Store) AddModel(m dealer.Model) (dealer.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.models.Append(modelKey(m.ID), m.Fields())
	if err != nil {
		return dealer.Model{}, err
	}
	return m, nil
}

// GetModel looks a model up by id via the models index. A missing id is
// ErrNotFound.
func (s *Store) GetModel(id int) (dealer.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.models.LookupPosition(modelKey(id))
	if err != nil {
		return dealer.Model{}, err
	}
	fields, err := s.models.ReadAt(pos)
	if err != nil {
		return dealer.Model{}, err
	}
	return dealer.ParseModel(fields)
}

// AddCar appends a car to the cars log and its index, with whatever status
// the caller set. Returns the input unchanged.
func (s *Store) AddCar(c dealer.Car) (dealer.Car, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.cars.Append(c.VIN, c.Fields())
	if err != nil {
		return dealer.Car{}, err
	}
	return c, nil
}

// ListCars scans the whole cars log and returns the cars whose status
// matches, in log order. Rows that fail to parse are skipped, not reported.
func (s *Store) ListCars(status dealer.CarStatus) ([]dealer.Car, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cars []dealer.Car
	err := s.cars.Scan(func(pos int, fields []string) error {
		car, err := dealer.ParseCar(fields)
		if err != nil {
			return nil // skip malformed rows
		}
		if car.Status == status {
			cars = append(cars, car)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cars, nil
}
