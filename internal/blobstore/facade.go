// Package blobstore is the thin façade the dispatcher calls for Static and
// Files endpoints. The actual upload/download handling, content scanning,
// and storage backend are an external collaborator (§1 "blob store"); this
// package only resolves an endpoint-scoped path to bytes for the local,
// disk-backed case, the way friggdb's disk cache resolves a block key to a
// file under its configured root.
package blobstore

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/melosso/portway/internal/gatewayerr"
)

// Facade serves read-only blobs rooted at a per-endpoint base directory.
// Access is guarded by a single mutex per facade instance, matching the
// coarse-grained disk_cache.reader.lock rather than per-file locking: file
// endpoints are expected to be low-traffic relative to SQL/proxy.
type Facade struct {
	mu   sync.RWMutex
	root string
}

// New constructs a Facade rooted at root. root is created if it does not
// already exist.
func New(root string) (*Facade, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Facade{root: root}, nil
}

// Blob is one resolved file, ready to be streamed back to the caller.
type Blob struct {
	Name        string
	ContentType string
	ModTime     time.Time
	Size        int64
	Open        func() (*os.File, error)
}

// Resolve maps endpointName and the path remainder to a file under the
// facade's root, rejecting any path traversal above the endpoint directory.
func (f *Facade) Resolve(endpointName, remainder string) (*Blob, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if filepath.Clean("/"+remainder) == "/" {
		remainder = "index"
	}
	full := filepath.Join(f.root, endpointName, remainder)

	base := filepath.Join(f.root, endpointName)
	if !strings.HasPrefix(full, base+string(filepath.Separator)) && full != base {
		return nil, gatewayerr.New(gatewayerr.KindValidation, "path escapes the endpoint's file root")
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gatewayerr.New(gatewayerr.KindNotFound, "file not found")
		}
		return nil, gatewayerr.Wrap(gatewayerr.KindInternal, "failed to stat file", err)
	}
	if info.IsDir() {
		return nil, gatewayerr.New(gatewayerr.KindNotFound, "file not found")
	}

	return &Blob{
		Name:        filepath.Base(full),
		ContentType: contentTypeFor(full),
		ModTime:     info.ModTime(),
		Size:        info.Size(),
		Open:        func() (*os.File, error) { return os.Open(full) },
	}, nil
}

// Store writes body under endpointName/remainder, used by the Files kind's
// POST contract. Static endpoints never call this (§3: Files allows POST,
// Static does not).
func (f *Facade) Store(endpointName, remainder string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	full := filepath.Join(f.root, endpointName, remainder)
	base := filepath.Join(f.root, endpointName)
	if !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return gatewayerr.New(gatewayerr.KindValidation, "path escapes the endpoint's file root")
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindInternal, "failed to create file directory", err)
	}
	if err := os.WriteFile(full, body, 0o644); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindInternal, "failed to write file", err)
	}
	return nil
}

var extContentType = map[string]string{
	".json": "application/json",
	".xml":  "application/xml",
	".txt":  "text/plain",
	".html": "text/html",
	".csv":  "text/csv",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

func contentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := extContentType[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
