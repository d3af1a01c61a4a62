package classifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/timmy/lungscan/internal/domain"
	ort "github.com/yalue/onnxruntime_go"
)

// OnnxModel runs an exported Keras classifier through ONNX Runtime.
type OnnxModel struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	once       sync.Once
}

// NewOnnxModel loads modelPath. libPath points at the onnxruntime shared library;
// empty uses the library's default lookup.
func NewOnnxModel(modelPath, libPath string) (*OnnxModel, error) {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("init onnx: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("read model io info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("expected 1 input and 1 output, got %d and %d", len(inputs), len(outputs))
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &OnnxModel{
		session:    session,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
	}, nil
}

func (m *OnnxModel) Backend() string {
	return "onnx"
}

// Predict allocates a fresh tensor pair per call so the session can be shared.
func (m *OnnxModel) Predict(_ context.Context, input []float32) ([]float32, error) {
	in, err := ort.NewTensor(ort.NewShape(1, InputSize, InputSize, 3), input)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(domain.NumDiseaseClasses)))
	if err != nil {
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := m.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	scores := make([]float32, domain.NumDiseaseClasses)
	copy(scores, out.GetData())
	return scores, nil
}

func (m *OnnxModel) Close() error {
	var err error
	m.once.Do(func() {
		err = m.session.Destroy()
		if destroyErr := ort.DestroyEnvironment(); err == nil {
			err = destroyErr
		}
	})
	return err
}
