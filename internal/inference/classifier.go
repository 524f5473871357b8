package inference

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/smartpest-api/internal/apperror"
	"github.com/smartpest-api/internal/models"
)

// State describes the classifier lifecycle
type State string

const (
	StatePending     State = "pending"
	StateLoaded      State = "loaded"
	StateUnavailable State = "unavailable"
)

// Source names the weight file that produced the loaded session
type Source string

const (
	SourceNone     Source = ""
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
	SourceMock     Source = "mock"
)

// Session is a loaded model ready for forward passes.
// Implementations need not be safe for concurrent use.
type Session interface {
	// InputSize returns the spatial size the model expects
	InputSize() (width, height int)
	// OutputSize returns the number of logits per forward pass
	OutputSize() int
	Run(input []float32) ([]float32, error)
	Close() error
}

// SessionOpener opens a weight file
type SessionOpener func(path string) (Session, error)

// Recorder receives classifier telemetry
type Recorder interface {
	ModelLoaded(source Source, duration time.Duration)
	ModelLoadFailed(source Source, reason string)
	ClassifierState(state State, source Source)
	Prediction(source Source, outcome string, duration time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ModelLoaded(Source, time.Duration) {}
func (noopRecorder) ModelLoadFailed(Source, string) {}
func (noopRecorder) ClassifierState(State, Source) {}
func (noopRecorder) Prediction(Source, string, time.Duration) {}

// Options configure a Classifier
type Options struct {
	PrimaryPath  string
	FallbackPath string
	ClassesPath  string

	MockMinConfidence float64
	MockMaxConfidence float64

	Open     SessionOpener
	Recorder Recorder
	// Rand drives mock predictions; nil seeds from the clock
	Rand *rand.Rand
}

// Info is a snapshot of the classifier for health and dashboard endpoints
type Info struct {
	State   State  `json:"state"`
	Source  Source `json:"source,omitempty"`
	Classes int    `json:"classes"`
}

// Degraded reports whether predictions are mock
func (i Info) Degraded() bool {
	return i.State == StateUnavailable
}

// Classifier loads a model at most once and serves predictions from it,
// degrading to random mock predictions when no model can be loaded.
type Classifier struct {
	opts     Options
	recorder Recorder
	logger   zerolog.Logger

	once sync.Once

	// stateMu guards state and source which are read by health checks during loading
	stateMu sync.RWMutex
	state   State
	source  Source

	// Written once inside load
	session    Session
	classes    []string
	mockLabels []string

	// runMu serialises forward passes and mock sampling
	runMu sync.Mutex
	rng   *rand.Rand
}

// New creates a Classifier. Nothing is loaded until Load or the first Predict.
func New(opts Options, log zerolog.Logger) *Classifier {
	recorder := opts.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	rng := opts.Rand
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Classifier{
		opts:     opts,
		recorder: recorder,
		logger:   log.With().Str("component", "classifier").Logger(),
		state:    StatePending,
		rng:      rng,
	}
}

// Load performs the one-time model load. Safe to call repeatedly and concurrently.
func (c *Classifier) Load() {
	c.once.Do(c.load)
}

func (c *Classifier) load() {
	c.logger.Info().Msg("Loading classifier")

	classes, err := LoadClassList(c.opts.ClassesPath)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", c.opts.ClassesPath).
			Msg("Class list unavailable, using built-in mock labels")
		c.mockLabels = FallbackLabels
		c.recorder.ModelLoadFailed(SourceNone, "classes")
		c.setState(StateUnavailable, SourceNone)
		return
	}
	c.classes = classes
	c.mockLabels = classes

	candidates := []struct {
		source Source
		path   string
	}{
		{SourcePrimary, c.opts.PrimaryPath},
		{SourceFallback, c.opts.FallbackPath},
	}

	for _, cand := range candidates {
		start := time.Now()
		session, err := c.open(cand.path)
		if err != nil {
			c.logger.Warn().Err(err).
				Str("source", string(cand.source)).
				Str("path", cand.path).
				Msg("Could not load weights")
			c.recorder.ModelLoadFailed(cand.source, failureReason(err))
			continue
		}

		c.session = session
		c.recorder.ModelLoaded(cand.source, time.Since(start))
		c.setState(StateLoaded, cand.source)
		c.logger.Info().
			Str("source", string(cand.source)).
			Str("path", cand.path).
			Int("classes", len(classes)).
			Dur("duration", time.Since(start)).
			Msg("Classifier loaded")
		return
	}

	c.logger.Warn().Msg("No usable weights, serving mock predictions")
	c.setState(StateUnavailable, SourceNone)
}

func (c *Classifier) open(path string) (Session, error) {
	if err := checkWeightFile(path); err != nil {
		return nil, err
	}
	if c.opts.Open == nil {
		return nil, errors.New("no session opener configured")
	}

	session, err := c.opts.Open(path)
	if err != nil {
		return nil, err
	}
	if got := session.OutputSize(); got != len(c.classes) {
		session.Close()
		return nil, fmt.Errorf("%w: model has %d outputs, class list has %d",
			ErrClassCountMismatch, got, len(c.classes))
	}
	return session, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrWeightsMissing):
		return "missing"
	case errors.Is(err, ErrLFSPointer):
		return "lfs_pointer"
	case errors.Is(err, ErrClassCountMismatch):
		return "class_mismatch"
	default:
		return "open_error"
	}
}

func (c *Classifier) setState(state State, source Source) {
	c.stateMu.Lock()
	c.state = state
	c.source = source
	c.stateMu.Unlock()
	c.recorder.ClassifierState(state, source)
}

// Info returns the current classifier state
func (c *Classifier) Info() Info {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	info := Info{State: c.state, Source: c.source}
	if c.state != StatePending {
		info.Classes = len(c.classes)
	}
	return info
}

// Predict classifies the image stored at imagePath. The file must decode as
// an image even in degraded mode. Decode failures return an apperror of kind
// decode; everything else that goes wrong is reported as kind inference.
func (c *Classifier) Predict(ctx context.Context, imagePath string) (pred *models.Prediction, err error) {
	start := time.Now()
	source := SourceMock

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Str("path", imagePath).Msg("Classifier panicked")
			pred, err = nil, apperror.Inference(fmt.Errorf("panic: %v", r))
		}
		c.recorder.Prediction(source, outcome(err), time.Since(start))
	}()

	c.Load()

	img, err := DecodeImage(imagePath)
	if err != nil {
		return nil, apperror.Decode(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, apperror.Inference(err)
	}

	if c.session == nil {
		return c.mockPrediction(), nil
	}

	source = c.Info().Source
	width, height := c.session.InputSize()
	input := Preprocess(img, width, height)

	logits, err := c.run(input)
	if err != nil {
		return nil, apperror.Inference(err)
	}
	if len(logits) != len(c.classes) {
		return nil, apperror.Inference(fmt.Errorf("%w: got %d logits for %d classes",
			ErrClassCountMismatch, len(logits), len(c.classes)))
	}

	probs := Softmax(logits)
	idx := Argmax(probs)

	return &models.Prediction{
		Class:      c.classes[idx],
		Confidence: Round4(probs[idx]),
	}, nil
}

func (c *Classifier) run(input []float32) ([]float32, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.session == nil {
		return nil, errors.New("classifier closed")
	}
	return c.session.Run(input)
}

func (c *Classifier) mockPrediction() *models.Prediction {
	low, high := c.opts.MockMinConfidence, c.opts.MockMaxConfidence
	if high < low {
		low, high = high, low
	}

	c.runMu.Lock()
	label := c.mockLabels[c.rng.IntN(len(c.mockLabels))]
	confidence := low + c.rng.Float64()*(high-low)
	c.runMu.Unlock()

	return &models.Prediction{
		Class:      label,
		Confidence: Round4(confidence),
		Mock:       true,
	}
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(apperror.KindOf(err))
}

// Close releases the loaded session
func (c *Classifier) Close() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}
