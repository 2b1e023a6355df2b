package storage

import "github.com/datadesk/datadesk/internal/storage/history"

// NewServices wires the dataset and record services over a shared
// FileStore and lock manager. hist may be nil to disable change history.
func NewServices(fs *FileStore, hist *history.Service) (*DatasetService, *RecordService) {
	locks := newLockManager()
	return NewDatasetService(fs, locks, hist), NewRecordService(fs, locks, hist)
}
