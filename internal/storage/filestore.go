// Package storage implements the schema-driven record store: the dataset
// registry, record CRUD with uniqueness and referential integrity
// enforcement, relation resolution and duplicate detection.
//
// Layout of the data directory:
//
//	datasets.jsonl        catalog of dataset definitions
//	records/<id>.jsonl    one table per dataset
//	files/                uploaded assets (see the files subpackage)
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/datadesk/datadesk/internal/jsonldb"
	"github.com/datadesk/datadesk/internal/models"
)

const (
	catalogFile = "datasets.jsonl"
	recordsDir  = "records"
)

// FileStore owns the on-disk tables: the dataset catalog and one record
// table per dataset. It also maintains the global record id index that
// makes bare record ids resolvable to their owning dataset.
type FileStore struct {
	root    string
	catalog *jsonldb.Table[*models.Dataset]

	mu          sync.RWMutex
	tables      map[string]*jsonldb.Table[*models.DataRecord]
	recordOwner map[string]string // record id -> dataset id
}

// NewFileStore opens (or creates) a data directory and loads all tables.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(root, recordsDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	catalog, err := jsonldb.NewTable[*models.Dataset](filepath.Join(root, catalogFile))
	if err != nil {
		return nil, err
	}

	s := &FileStore{
		root:        root,
		catalog:     catalog,
		tables:      make(map[string]*jsonldb.Table[*models.DataRecord]),
		recordOwner: make(map[string]string),
	}
	for ds := range catalog.All() {
		table, err := s.openTable(ds.ID)
		if err != nil {
			return nil, err
		}
		for rec := range table.All() {
			s.recordOwner[rec.ID] = ds.ID
		}
	}
	return s, nil
}

// Root returns the data directory path.
func (s *FileStore) Root() string {
	return s.root
}

// CatalogPath returns the path of the dataset catalog file.
func (s *FileStore) CatalogPath() string {
	return s.catalog.Path()
}

// Catalog returns the dataset definition table.
func (s *FileStore) Catalog() *jsonldb.Table[*models.Dataset] {
	return s.catalog
}

// ReloadCatalog re-reads the dataset catalog from disk.
func (s *FileStore) ReloadCatalog() error {
	return s.catalog.Reload()
}

// Dataset returns the dataset with the given id, or nil.
func (s *FileStore) Dataset(id string) *models.Dataset {
	return s.catalog.Get(id)
}

func (s *FileStore) tablePath(datasetID string) string {
	return filepath.Join(s.root, recordsDir, sanitizeTableName(datasetID)+".jsonl")
}

// sanitizeTableName keeps dataset ids safe to use as file names. IDs are
// UUIDs in practice, but the catalog file can be edited by hand.
func sanitizeTableName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}

func (s *FileStore) openTable(datasetID string) (*jsonldb.Table[*models.DataRecord], error) {
	if t, ok := s.tables[datasetID]; ok {
		return t, nil
	}
	t, err := jsonldb.NewTable[*models.DataRecord](s.tablePath(datasetID))
	if err != nil {
		return nil, err
	}
	s.tables[datasetID] = t
	return t, nil
}

// Records returns the record table for a dataset, opening it on first use.
func (s *FileStore) Records(datasetID string) (*jsonldb.Table[*models.DataRecord], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openTable(datasetID)
}

// RemoveRecords deletes a dataset's record table and its file, and drops
// all of its entries from the record index.
func (s *FileStore) RemoveRecords(datasetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tables[datasetID]; ok {
		for rec := range t.All() {
			delete(s.recordOwner, rec.ID)
		}
		delete(s.tables, datasetID)
	}
	if err := os.Remove(s.tablePath(datasetID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove record table: %w", err)
	}
	return nil
}

// OwnerOf returns the dataset owning the record with the given id.
func (s *FileStore) OwnerOf(recordID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	datasetID, ok := s.recordOwner[recordID]
	return datasetID, ok
}

// IndexRecord registers a record id as belonging to a dataset.
func (s *FileStore) IndexRecord(recordID, datasetID string) {
	s.mu.Lock()
	s.recordOwner[recordID] = datasetID
	s.mu.Unlock()
}

// UnindexRecords drops record ids from the global index.
func (s *FileStore) UnindexRecords(ids ...string) {
	s.mu.Lock()
	for _, id := range ids {
		delete(s.recordOwner, id)
	}
	s.mu.Unlock()
}
