// Package catsound runs the cat detector and cat sound classifier models
// and chains them into a two-stage cascade.
package catsound

import (
	"encoding/json"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"

	"github.com/MadBale/Mewsage-project/internal/conf"
	"github.com/MadBale/Mewsage-project/internal/cpuspec"
	"github.com/MadBale/Mewsage-project/internal/errors"
	"github.com/MadBale/Mewsage-project/internal/logging"
	"github.com/MadBale/Mewsage-project/internal/melspec"
)

// Prediction is the outcome of a single model invocation.
type Prediction struct {
	Label         string
	Confidence    float64
	Probabilities map[string]float64
}

// Predictor runs one model over a feature tensor. Satisfied by *Model and
// by test fakes.
type Predictor interface {
	Predict(t *melspec.Tensor) (Prediction, error)
}

// Model wraps a TensorFlow Lite interpreter together with its label
// vocabulary. Predict serializes invocations with a mutex because a
// TensorFlow Lite interpreter is not safe for concurrent use.
type Model struct {
	name        string
	model       *tflite.Model
	interpreter *tflite.Interpreter
	labels      []string
	mu          sync.Mutex
	logger      *slog.Logger
}

// LoadModel reads the weights and label files and builds a ready
// interpreter. Any failure here is fatal for serving, the process cannot
// predict without both models.
func LoadModel(name string, settings *conf.ModelSettings) (*Model, error) {
	start := time.Now()
	logger := logging.ForService("catsound")

	modelData, err := os.ReadFile(settings.ModelPath)
	if err != nil {
		return nil, errors.New(err).
			Component("catsound").
			Category(errors.CategoryModelLoad).
			Context("model", name).
			Context("model_path", settings.ModelPath).
			Timing("model-load", time.Since(start)).
			Build()
	}

	labels, err := loadLabels(settings.LabelPath)
	if err != nil {
		return nil, errors.New(err).
			Component("catsound").
			Category(errors.CategoryModelLoad).
			Context("model", name).
			Context("label_path", settings.LabelPath).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return nil, errors.Newf("cannot parse TensorFlow Lite model %s", settings.ModelPath).
			Component("catsound").
			Category(errors.CategoryModelInit).
			Context("model", name).
			Context("model_size_kb", len(modelData)/1024).
			Build()
	}

	threads := determineThreadCount(settings.Threads)
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, userData any) {
		logger.Error("tflite runtime error", "model", name, "detail", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, errors.Newf("cannot create interpreter for model %s", name).
			Component("catsound").
			Category(errors.CategoryModelInit).
			Context("model", name).
			Build()
	}

	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, errors.Newf("tensor allocation failed for model %s", name).
			Component("catsound").
			Category(errors.CategoryModelInit).
			Context("model", name).
			Build()
	}

	m := &Model{
		name:        name,
		model:       model,
		interpreter: interpreter,
		labels:      labels,
		logger:      logger,
	}
	if err := m.validateModelAndLabels(); err != nil {
		m.Close()
		return nil, err
	}

	logger.Info("model loaded",
		"model", name,
		"labels", len(labels),
		"threads", threads,
		"duration_ms", time.Since(start).Milliseconds())
	return m, nil
}

// loadLabels reads the exported label-encoder classes, a JSON string array.
func loadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, errors.NewStd("label file contains no labels")
	}
	return labels, nil
}

// validateModelAndLabels checks that the label vocabulary matches the
// model's output width.
func (m *Model) validateModelAndLabels() error {
	outputTensor := m.interpreter.GetOutputTensor(0)
	if outputTensor == nil {
		return errors.Newf("cannot get output tensor from model %s", m.name).
			Component("catsound").
			Category(errors.CategoryModelLoad).
			Context("model", m.name).
			Build()
	}

	modelOutputSize := outputTensor.Dim(outputTensor.NumDims() - 1)
	if len(m.labels) != modelOutputSize {
		return errors.Newf("label count mismatch: model %s expects %d classes but label file has %d labels",
			m.name, modelOutputSize, len(m.labels)).
			Component("catsound").
			Category(errors.CategoryModelLoad).
			Context("model", m.name).
			Context("expected_labels", modelOutputSize).
			Context("actual_labels", len(m.labels)).
			Build()
	}
	return nil
}

// determineThreadCount picks the interpreter thread count. A configured
// value wins, capped by the CPUs actually available.
func determineThreadCount(configured int) int {
	if configured > 0 {
		if cpus := runtime.NumCPU(); configured > cpus {
			return cpus
		}
		return configured
	}
	return cpuspec.GetCPUSpec().GetOptimalThreadCount()
}

// Labels returns the model's label vocabulary.
func (m *Model) Labels() []string {
	return m.labels
}

// Predict copies the tensor into the interpreter, invokes it and returns
// the winning label. Ties resolve to the lowest label index so results
// are stable.
func (m *Model) Predict(t *melspec.Tensor) (Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	input := m.interpreter.GetInputTensor(0)
	if input == nil {
		return Prediction{}, errors.Newf("cannot get input tensor from model %s", m.name).
			Component("catsound").
			Category(errors.CategoryCascade).
			Context("model", m.name).
			Build()
	}

	dst := input.Float32s()
	if len(dst) != len(t.Data) {
		return Prediction{}, errors.Newf("tensor size mismatch: model %s expects %d values, extractor produced %d",
			m.name, len(dst), len(t.Data)).
			Component("catsound").
			Category(errors.CategoryCascade).
			Context("model", m.name).
			Build()
	}
	copy(dst, t.Data)

	if status := m.interpreter.Invoke(); status != tflite.OK {
		return Prediction{}, errors.Newf("tensor invoke failed for model %s", m.name).
			Component("catsound").
			Category(errors.CategoryCascade).
			Context("model", m.name).
			Timing("invoke", time.Since(start)).
			Build()
	}

	output := m.interpreter.GetOutputTensor(0).Float32s()
	return m.buildPrediction(output), nil
}

func (m *Model) buildPrediction(output []float32) Prediction {
	best := 0
	for i, v := range output {
		if v > output[best] {
			best = i
		}
	}

	probabilities := make(map[string]float64, len(m.labels))
	for i, label := range m.labels {
		probabilities[label] = float64(output[i])
	}

	return Prediction{
		Label:         m.labels[best],
		Confidence:    float64(output[best]),
		Probabilities: probabilities,
	}
}

// Close releases the interpreter and model memory.
func (m *Model) Close() {
	if m.interpreter != nil {
		m.interpreter.Delete()
		m.interpreter = nil
	}
	if m.model != nil {
		m.model.Delete()
		m.model = nil
	}
}
