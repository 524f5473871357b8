package inference

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// RuntimeOptions configure how ONNX weight files are opened
type RuntimeOptions struct {
	// LibraryPath points at libonnxruntime; empty uses the platform default
	LibraryPath string
	// InputName and OutputName select tensors by name; empty picks the first
	InputName  string
	OutputName string
	// DefaultInputSize replaces dynamic spatial dimensions
	DefaultInputSize int
}

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

func initRuntime(libraryPath string) error {
	runtimeOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		runtimeErr = ort.InitializeEnvironment()
	})
	return runtimeErr
}

// ShutdownRuntime releases the ONNX environment if it was initialised
func ShutdownRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// NewONNXOpener returns a SessionOpener backed by onnxruntime
func NewONNXOpener(opts RuntimeOptions) SessionOpener {
	return func(path string) (Session, error) {
		return openONNXSession(path, opts)
	}
}

type onnxSession struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	width        int
	height       int
	outputs      int
}

func openONNXSession(path string, opts RuntimeOptions) (*onnxSession, error) {
	if err := initRuntime(opts.LibraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect model: %w", err)
	}
	in, err := pickTensor(inputs, opts.InputName)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	out, err := pickTensor(outputs, opts.OutputName)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}

	inputShape, err := resolveInputShape(in.Dimensions, opts.DefaultInputSize)
	if err != nil {
		return nil, err
	}
	outputShape, err := resolveOutputShape(out.Dimensions)
	if err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{in.Name}, []string{out.Name},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &onnxSession{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		width:        int(inputShape[3]),
		height:       int(inputShape[2]),
		outputs:      int(outputShape[len(outputShape)-1]),
	}, nil
}

func pickTensor(infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, errors.New("model declares no tensors")
	}
	if name == "" {
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return ort.InputOutputInfo{}, fmt.Errorf("tensor %q not found", name)
}

// resolveInputShape expects NCHW with three channels
func resolveInputShape(dims ort.Shape, defaultSize int) (ort.Shape, error) {
	if len(dims) != 4 {
		return nil, fmt.Errorf("expected 4-dimensional input, got %v", dims)
	}
	if dims[1] > 0 && dims[1] != 3 {
		return nil, fmt.Errorf("expected 3 input channels, got %d", dims[1])
	}

	shape := ort.NewShape(1, 3, dims[2], dims[3])
	for i := 2; i < 4; i++ {
		if shape[i] <= 0 {
			if defaultSize <= 0 {
				return nil, fmt.Errorf("input dimension %d is dynamic and no default size is set", i)
			}
			shape[i] = int64(defaultSize)
		}
	}
	return shape, nil
}

func resolveOutputShape(dims ort.Shape) (ort.Shape, error) {
	if len(dims) == 0 {
		return nil, errors.New("output has no dimensions")
	}
	if dims[len(dims)-1] <= 0 {
		return nil, fmt.Errorf("output width is dynamic: %v", dims)
	}
	shape := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		shape[i] = d
	}
	return shape, nil
}

func (s *onnxSession) InputSize() (int, int) {
	return s.width, s.height
}

func (s *onnxSession) OutputSize() int {
	return s.outputs
}

func (s *onnxSession) Run(input []float32) ([]float32, error) {
	data := s.inputTensor.GetData()
	if len(input) != len(data) {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), len(data))
	}
	copy(data, input)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	// The output buffer is reused on the next run
	out := s.outputTensor.GetData()
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}

func (s *onnxSession) Close() error {
	var errs []error
	if s.session != nil {
		errs = append(errs, s.session.Destroy())
	}
	if s.inputTensor != nil {
		errs = append(errs, s.inputTensor.Destroy())
	}
	if s.outputTensor != nil {
		errs = append(errs, s.outputTensor.Destroy())
	}
	return errors.Join(errs...)
}
