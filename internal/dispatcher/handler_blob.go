package dispatcher

import (
	"io"
	"net/http"
	"strconv"

	"github.com/melosso/portway/internal/catalog"
	"github.com/melosso/portway/internal/gatewayerr"
)

// handleBlob serves the Static and Files kinds, both backed by the
// blobstore façade (§3): Static is read-only, Files additionally accepts
// POST uploads under the same endpoint-scoped root.
func (d *Dispatcher) handleBlob(req *requestContext) error {
	switch req.r.Method {
	case http.MethodGet, http.MethodHead:
		return d.handleBlobGet(req)
	case http.MethodPost:
		if req.endpoint.Kind != catalog.KindFiles {
			return gatewayerr.New(gatewayerr.KindMethodDenied, "this endpoint does not accept uploads")
		}
		return d.handleBlobPost(req)
	default:
		return gatewayerr.New(gatewayerr.KindMethodDenied, "method not allowed for this endpoint")
	}
}

func (d *Dispatcher) handleBlobGet(req *requestContext) error {
	blob, err := d.deps.Blobs.Resolve(req.endpoint.Name, req.parsed.Remainder)
	if err != nil {
		return err
	}

	req.w.Header().Set("Content-Type", blob.ContentType)
	req.w.Header().Set("Content-Length", strconv.FormatInt(blob.Size, 10))
	req.w.Header().Set("Last-Modified", blob.ModTime.UTC().Format(http.TimeFormat))

	if req.r.Method == http.MethodHead {
		req.w.WriteHeader(http.StatusOK)
		return nil
	}

	f, err := blob.Open()
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindInternal, "failed to open file", err)
	}
	defer f.Close()

	req.w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(req.w, f)
	return nil
}

func (d *Dispatcher) handleBlobPost(req *requestContext) error {
	body, err := io.ReadAll(req.r.Body)
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindValidation, "failed to read request body", err)
	}
	if err := d.deps.Blobs.Store(req.endpoint.Name, req.parsed.Remainder, body); err != nil {
		return err
	}
	writeJSON(req.w, http.StatusCreated, map[string]interface{}{"stored": true})
	return nil
}
