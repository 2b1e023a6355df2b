// Package handlers implements the HTTP API handlers. Each handler is a
// plain function from a request struct to a response struct; the server
// package adapts them to http.Handler.
package handlers

import (
	"github.com/datadesk/datadesk/internal/storage"
	"github.com/datadesk/datadesk/internal/storage/files"
	"github.com/datadesk/datadesk/internal/storage/history"
)

// Validatable is implemented by every request type.
type Validatable interface {
	Validate() error
}

// Services bundles the backend services the handlers operate on.
// History may be nil when change history is disabled.
type Services struct {
	Datasets *storage.DatasetService
	Records  *storage.RecordService
	Assets   *files.Service
	Uploads  *files.Ingestor
	History  *history.Service
}
