// Package server exposes the record store over HTTP. Handlers are typed
// functions in the handlers package; this package adapts them, routes
// them and applies the cross-cutting middleware.
package server

import (
	"net/http"
	"os"

	"github.com/datadesk/datadesk/internal/server/handlers"
	"github.com/datadesk/datadesk/internal/storage/files"
)

// Options tunes the HTTP layer.
type Options struct {
	// RateLimitRPS is the sustained budget of mutating requests per
	// client. Zero disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

// New builds the API handler with all routes registered.
func New(svc *handlers.Services, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/datasets", Wrap(svc.ListDatasets))
	mux.Handle("POST /api/datasets", Wrap(svc.CreateDataset))
	mux.Handle("GET /api/datasets/{id}", Wrap(svc.GetDataset))
	mux.Handle("PUT /api/datasets/{id}", Wrap(svc.UpdateDataset))
	mux.Handle("DELETE /api/datasets/{id}", Wrap(svc.DeleteDataset))

	mux.Handle("GET /api/datasets/{id}/records", Wrap(svc.ListRecords))
	mux.Handle("GET /api/datasets/{id}/records/resolved", Wrap(svc.ListResolvedRecords))
	mux.Handle("POST /api/datasets/{id}/records", Wrap(svc.AddRecord))
	mux.Handle("POST /api/datasets/{id}/import", Wrap(svc.ImportRecords))
	mux.Handle("POST /api/datasets/{id}/duplicates", Wrap(svc.CheckDuplicates))

	mux.Handle("GET /api/records/{id}", Wrap(svc.GetRecord))
	mux.Handle("GET /api/records/{id}/resolved", Wrap(svc.GetResolvedRecord))
	mux.Handle("PUT /api/records/{id}", Wrap(svc.UpdateRecord))
	mux.Handle("DELETE /api/records/{id}", Wrap(svc.DeleteRecord))

	mux.Handle("POST /api/files", Wrap(svc.UploadFile))
	mux.Handle("POST /api/files/chunk", Wrap(svc.UploadChunk))
	mux.HandleFunc("GET /api/files/{path...}", serveAsset(svc.Assets))
	mux.HandleFunc("DELETE /api/files/{path...}", deleteAsset(svc.Assets))

	mux.Handle("GET /api/history", Wrap(svc.GetHistory))
	mux.Handle("GET /api/schema", Wrap(svc.GetSchema))
	mux.Handle("GET /api/health", Wrap(svc.Health))

	var h http.Handler = mux
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = int(opts.RateLimitRPS)
		}
		h = newRateLimiter(opts.RateLimitRPS, burst).limitMutations(h)
	}
	return logRequests(h)
}

// serveAsset streams a stored file. http.ServeFile handles Range requests
// and Content-Type; Resolve keeps the path inside the data directory.
// "?size=thumbnail|medium" serves a cached resized rendition for images.
func serveAsset(assets *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		relPath := r.PathValue("path")
		var full string
		var err error
		if size := r.URL.Query().Get("size"); size != "" {
			full, err = assets.Resized(relPath, size)
		} else {
			full, err = assets.Resolve(relPath)
		}
		if err != nil {
			writeJSONResponse[struct{}](r.Context(), w, nil, err)
			return
		}
		if _, err := os.Stat(full); err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, full)
	}
}

// deleteAsset removes a stored file.
func deleteAsset(assets *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := assets.Delete(r.PathValue("path")); err != nil {
			writeJSONResponse[struct{}](r.Context(), w, nil, err)
			return
		}
		writeJSONResponse(r.Context(), w, &handlers.DeletedResponse{Deleted: true}, nil)
	}
}
