package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/smartpest-api/internal/config"
)

// uploadJanitor is the concrete implementation of UploadJanitor
type uploadJanitor struct {
	dir        string
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
	log        zerolog.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// newUploadJanitor creates a new UploadJanitor
func newUploadJanitor(cfg config.UploadConfig, log zerolog.Logger) *uploadJanitor {
	dir := cfg.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	interval := cfg.JanitorInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	return &uploadJanitor{
		dir:        dir,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
		log:        log.With().Str("service", "upload_janitor").Logger(),
	}
}

// Start sweeps once immediately and then on every tick until Stop
func (j *uploadJanitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}
	j.running = true

	ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop(ctx)
	}()

	j.log.Info().Dur("interval", j.interval).Str("dir", j.dir).Msg("Upload janitor started")
}

func (j *uploadJanitor) loop(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweepAndLog()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweepAndLog()
		}
	}
}

func (j *uploadJanitor) sweepAndLog() {
	removed, err := j.Sweep()
	if err != nil {
		j.log.Warn().Err(err).Msg("Upload sweep failed")
		return
	}
	if removed > 0 {
		j.log.Info().Int("removed", removed).Msg("Removed stale uploads")
	}
}

// Stop halts the background loop and waits for it to exit
func (j *uploadJanitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return
	}
	j.cancel()
	j.wg.Wait()
	j.running = false
	j.log.Info().Msg("Upload janitor stopped")
}

// Sweep removes upload files older than the stale threshold
func (j *uploadJanitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := j.now().Add(-j.staleAfter)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), UploadFilePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			j.log.Warn().Err(err).Str("path", path).Msg("Failed to remove stale upload")
			continue
		}
		removed++
	}
	return removed, nil
}
