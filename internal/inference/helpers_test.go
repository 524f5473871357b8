package inference

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSession returns fixed logits
type fakeSession struct {
	width, height int
	logits        []float32
	runErr        error
	panicOnRun    bool

	mu     sync.Mutex
	runs   int
	inputs int
	closed bool
}

func (f *fakeSession) InputSize() (int, int) { return f.width, f.height }
func (f *fakeSession) OutputSize() int       { return len(f.logits) }

func (f *fakeSession) Run(input []float32) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	f.inputs = len(input)
	if f.panicOnRun {
		panic("tensor shape mismatch")
	}
	if f.runErr != nil {
		return nil, f.runErr
	}
	return f.logits, nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// openerFor maps paths to sessions; unknown paths fail to open
func openerFor(sessions map[string]*fakeSession, opened *[]string) SessionOpener {
	return func(path string) (Session, error) {
		if opened != nil {
			*opened = append(*opened, path)
		}
		s, ok := sessions[path]
		if !ok {
			return nil, errors.New("corrupt weights")
		}
		return s, nil
	}
}

type recordedLoad struct {
	source Source
	reason string
}

type fakeRecorder struct {
	mu          sync.Mutex
	loaded      []Source
	failures    []recordedLoad
	states      []State
	predictions []string
}

func (r *fakeRecorder) ModelLoaded(source Source, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = append(r.loaded, source)
}

func (r *fakeRecorder) ModelLoadFailed(source Source, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, recordedLoad{source, reason})
}

func (r *fakeRecorder) ClassifierState(state State, _ Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *fakeRecorder) Prediction(source Source, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predictions = append(r.predictions, string(source)+":"+outcome)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeClasses(t *testing.T, dir string, classes ...string) string {
	t.Helper()
	return writeFile(t, dir, "classes.txt", strings.Join(classes, "\n")+"\n")
}

// writePNG writes a solid-colour image
func writePNG(t *testing.T, dir string, w, h int, c color.Color) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(dir, "leaf.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}
