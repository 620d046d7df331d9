package neural

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	envOnce sync.Once
	envErr  error
)

// initEnvironment loads the ONNX Runtime shared library once per process.
func initEnvironment(libPath string) error {
	envOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("error initializing ORT environment: %w", err)
		}
	})
	return envErr
}

// session is a single-input single-output float32 model.
type session struct {
	s      *ort.DynamicAdvancedSession
	input  string
	output string
}

func newSession(modelPath string) (*session, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("read model info %s: %w", modelPath, err)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, fmt.Errorf("model %s: expected one input and at least one output, got %d and %d",
			modelPath, len(inputs), len(outputs))
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return nil, fmt.Errorf("error setting graph optimization level: %w", err)
	}

	s, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session for %s: %w", modelPath, err)
	}

	return &session{s: s, input: inputs[0].Name, output: outputs[0].Name}, nil
}

// run feeds data with the given shape and returns the output values and shape.
func (s *session) run(shape ort.Shape, data []float32) ([]float32, ort.Shape, error) {
	input, err := ort.NewTensor(shape, data)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := s.s.Run([]ort.Value{input}, outputs); err != nil {
		return nil, nil, fmt.Errorf("failed to run inference: %w", err)
	}
	defer outputs[0].Destroy()

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("output %s is not a float32 tensor", s.output)
	}

	values := append([]float32(nil), tensor.GetData()...)
	return values, tensor.GetShape().Clone(), nil
}

func (s *session) close() error {
	if s == nil || s.s == nil {
		return nil
	}
	return s.s.Destroy()
}
