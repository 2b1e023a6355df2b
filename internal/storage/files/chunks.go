package files

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	apierrors "github.com/datadesk/datadesk/internal/errors"
)

// DefaultSessionTTL is how long an upload session may stay idle before
// its chunks are discarded.
const DefaultSessionTTL = 15 * time.Minute

const tempDir = "temp"

// session tracks one in-flight chunked upload. Chunks may arrive in any
// order; the upload completes once all totalChunks indexes were seen.
type session struct {
	total    int
	received map[int]bool
	lastSeen time.Time
}

// Ingestor reassembles chunked uploads. Chunks are spooled to
// root/temp/<sessionID>/chunk_<index> and concatenated in index order
// into a regular asset once complete.
type Ingestor struct {
	assets *Service
	ttl    time.Duration

	mu       sync.Mutex
	sessions map[string]*session
	expired  map[string]time.Time // tombstones so late chunks fail loudly
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewIngestor creates an ingestor over the given asset service. ttl <= 0
// selects DefaultSessionTTL. Call Close to stop the expiry sweeper.
func NewIngestor(assets *Service, ttl time.Duration) *Ingestor {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	ing := &Ingestor{
		assets:   assets,
		ttl:      ttl,
		sessions: make(map[string]*session),
		expired:  make(map[string]time.Time),
		done:     make(chan struct{}),
	}
	ing.wg.Add(1)
	go ing.sweep()
	return ing
}

// Close stops the expiry sweeper and discards all in-flight sessions.
func (g *Ingestor) Close() {
	close(g.done)
	g.wg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	for id := range g.sessions {
		g.discardLocked(id)
	}
}

// AddChunk stores one chunk of an upload session. The first chunk to
// arrive creates the session regardless of its index. When the last
// missing chunk arrives the file is assembled and its relative asset
// path returned; until then the returned path is empty.
func (g *Ingestor) AddChunk(ctx context.Context, sessionID, chunkData, fileName string, chunkIndex, totalChunks int) (string, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, "/\\.") {
		return "", apierrors.FileUpload(fmt.Sprintf("invalid upload session id %q", sessionID))
	}
	if totalChunks <= 0 {
		return "", apierrors.FileUpload("totalChunks must be positive")
	}
	if chunkIndex < 0 || chunkIndex >= totalChunks {
		return "", apierrors.FileUpload(fmt.Sprintf("chunk index %d out of range [0, %d)", chunkIndex, totalChunks))
	}

	mimeType, data, err := decodeDataURL(chunkData)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	sess, ok := g.sessions[sessionID]
	if !ok {
		if _, wasExpired := g.expired[sessionID]; wasExpired {
			return "", apierrors.FileUpload(fmt.Sprintf("upload session %q has expired", sessionID))
		}
		if err := os.MkdirAll(g.sessionDir(sessionID), 0o755); err != nil {
			return "", fmt.Errorf("failed to create upload session directory: %w", err)
		}
		sess = &session{total: totalChunks, received: make(map[int]bool)}
		g.sessions[sessionID] = sess
	}
	if sess.total != totalChunks {
		return "", apierrors.FileUpload(fmt.Sprintf("totalChunks changed mid-session (%d then %d)", sess.total, totalChunks))
	}
	sess.lastSeen = time.Now()

	chunkPath := filepath.Join(g.sessionDir(sessionID), fmt.Sprintf("chunk_%d", chunkIndex))
	if err := os.WriteFile(chunkPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write chunk: %w", err)
	}
	sess.received[chunkIndex] = true

	if len(sess.received) < sess.total {
		return "", nil
	}
	return g.assembleLocked(ctx, sessionID, sess, fileName, mimeType)
}

// assembleLocked concatenates all chunks in index order into a final
// asset and tears the session down.
func (g *Ingestor) assembleLocked(ctx context.Context, sessionID string, sess *session, fileName, mimeType string) (string, error) {
	ext := filepath.Ext(fileName)
	if ext == "" {
		ext = extensionForMIME(mimeType)
	}
	name := assetName(fileName, sessionID, ext)

	finalPath := filepath.Join(g.assets.Root(), Dir, name)
	dst, err := os.Create(finalPath)
	if err != nil {
		return "", fmt.Errorf("failed to create final file: %w", err)
	}
	defer dst.Close()

	for i := range sess.total {
		chunk, err := os.ReadFile(filepath.Join(g.sessionDir(sessionID), fmt.Sprintf("chunk_%d", i)))
		if err != nil {
			return "", fmt.Errorf("failed to read chunk %d: %w", i, err)
		}
		if _, err := dst.Write(chunk); err != nil {
			return "", fmt.Errorf("failed to write final file: %w", err)
		}
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("failed to write final file: %w", err)
	}

	g.discardLocked(sessionID)
	slog.InfoContext(ctx, "Assembled chunked upload", "session", sessionID, "chunks", sess.total, "file", name)
	return filepath.Join(Dir, name), nil
}

func (g *Ingestor) sessionDir(sessionID string) string {
	return filepath.Join(g.assets.Root(), tempDir, sessionID)
}

// discardLocked drops a session and its spooled chunks.
func (g *Ingestor) discardLocked(sessionID string) {
	delete(g.sessions, sessionID)
	if err := os.RemoveAll(g.sessionDir(sessionID)); err != nil {
		slog.Error("Failed to remove upload session directory", "session", sessionID, "err", err)
	}
}

// sweep expires idle sessions. Tombstones of expired sessions are kept
// for one extra TTL so stragglers get a clear error instead of silently
// starting a fresh session.
func (g *Ingestor) sweep() {
	defer g.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-g.done:
			return
		case now := <-ticker.C:
			g.expire(now)
		}
	}
}

// expire reclaims sessions idle past the TTL and ages out tombstones.
func (g *Ingestor) expire(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, sess := range g.sessions {
		if now.Sub(sess.lastSeen) > g.ttl {
			slog.Warn("Expiring idle upload session", "session", id, "received", len(sess.received), "total", sess.total)
			g.discardLocked(id)
			g.expired[id] = now
		}
	}
	for id, when := range g.expired {
		if now.Sub(when) > g.ttl {
			delete(g.expired, id)
		}
	}
}
