package ai

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrDownloadFailed covers every way an artifact can fail to turn into
// deliverable bytes: malformed base64, transport errors, non-2xx fetches.
var ErrDownloadFailed = errors.New("download failed")

// Materializer turns an artifact into bytes ready for attachment delivery.
type Materializer struct {
	client *http.Client
}

func NewMaterializer(timeout time.Duration) *Materializer {
	return &Materializer{
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch resolves an artifact to image bytes and a mime type. Inline
// artifacts are decoded locally. Remote artifacts cost exactly one fetch
// attempt, there are no retries.
func (m *Materializer) Fetch(artifact Artifact) ([]byte, string, error) {
	switch artifact.Kind {
	case ArtifactInline:
		data, err := base64.StdEncoding.DecodeString(artifact.B64)
		if err != nil {
			return nil, "", fmt.Errorf("%w: decoding base64: %v", ErrDownloadFailed, err)
		}
		return data, artifact.MimeType, nil

	case ArtifactRemote:
		resp, err := m.client.Get(artifact.URL)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, "", fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, "", fmt.Errorf("%w: reading body: %v", ErrDownloadFailed, err)
		}
		// the provider does not reliably report content-type on this path
		mimeType := defaultMimeType
		if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "image/") {
			mimeType = ct
		}
		return data, mimeType, nil

	default:
		// callers must not pass an absent artifact here
		return nil, "", fmt.Errorf("%w: no artifact to fetch", ErrDownloadFailed)
	}
}
