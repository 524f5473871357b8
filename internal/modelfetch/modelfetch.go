// Package modelfetch downloads classifier weight files.
package modelfetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/smartpest-api/internal/inference"
)

// RequestTimeout bounds a whole download
const RequestTimeout = 30 * time.Minute

var (
	// ErrTooLarge is returned when the payload exceeds the configured limit
	ErrTooLarge = errors.New("download exceeds size limit")
	// ErrEmpty is returned for zero-byte payloads
	ErrEmpty = errors.New("download is empty")
)

// Fetcher downloads weight files over HTTP
type Fetcher struct {
	client *http.Client
	limit  int64
	log    zerolog.Logger
}

// New creates a Fetcher. A non-positive limit disables the size check.
func New(limit int64, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: RequestTimeout},
		limit:  limit,
		log:    log.With().Str("component", "modelfetch").Logger(),
	}
}

// Fetch downloads url to dest and returns the number of bytes written. The
// payload is staged in a temp file next to dest and renamed into place, so
// dest is never left half written. Git LFS pointer payloads are rejected.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	f.log.Info().Str("url", url).Str("dest", dest).Msg("Downloading model weights")
	start := time.Now()

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("download failed: %s", resp.Status)
	}
	if f.limit > 0 && resp.ContentLength > f.limit {
		return 0, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, resp.ContentLength, f.limit)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create model directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	n, err := f.copy(tmp, resp.Body)
	if err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return 0, fmt.Errorf("failed to move weights into place: %w", err)
	}
	committed = true

	f.log.Info().
		Int64("bytes", n).
		Dur("duration", time.Since(start)).
		Str("dest", dest).
		Msg("Model weights downloaded")

	return n, nil
}

// copy streams src to dst while checking the LFS prefix and size limit
func (f *Fetcher) copy(dst io.Writer, src io.Reader) (int64, error) {
	head := make([]byte, len(inference.LFSPointerPrefix))
	hn, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("failed to read download: %w", err)
	}
	head = head[:hn]
	if hn == 0 {
		return 0, ErrEmpty
	}
	if inference.HasLFSPointerPrefix(head) {
		return 0, inference.ErrLFSPointer
	}

	reader := io.MultiReader(bytes.NewReader(head), src)
	if f.limit > 0 {
		// One extra byte distinguishes "exactly at the limit" from "over"
		reader = io.LimitReader(reader, f.limit+1)
	}

	n, err := io.Copy(dst, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to write weights: %w", err)
	}
	if f.limit > 0 && n > f.limit {
		return 0, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.limit)
	}
	return n, nil
}
