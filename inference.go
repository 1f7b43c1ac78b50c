package beatkey

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Recurrent BeatNet CRNN dimensions: two LSTM layers, batch 1, hidden size 150.
const (
	beatModelInputDim  = MelFeatureDim
	beatModelNumLayers = 2
	beatModelHidden    = 150
)

var ortInitOnce sync.Once
var ortInitErr error

func ensureOrtEnvironment() error {
	ortInitOnce.Do(func() {
		if path := os.Getenv("ONNXRUNTIME_LIB_PATH"); path != "" {
			ort.SetSharedLibraryPath(path)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// BeatModelOutput is a single frame's beat/downbeat activation pair.
type BeatModelOutput struct {
	Beat     float32
	Downbeat float32
}

// BeatModel wraps the BeatNet ONNX session, threading its hidden/cell LSTM
// state across successive Infer calls the way the reference engine keeps a
// live recurrent state instead of resetting it every frame.
type BeatModel struct {
	session *ort.DynamicAdvancedSession
	hidden  []float32
	cell    []float32
	log     *slog.Logger
}

// LoadBeatModel loads a BeatNet ONNX model from path. On failure the
// returned error wraps the underlying ONNX Runtime error; no partial state
// is left behind.
func LoadBeatModel(path string) (*BeatModel, error) {
	if err := ensureOrtEnvironment(); err != nil {
		return nil, fmt.Errorf("beatkey: onnxruntime init: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		path,
		[]string{"input", "hidden_in", "cell_in"},
		[]string{"output", "hidden_out", "cell_out"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("beatkey: load beat model %s: %w", path, err)
	}

	m := &BeatModel{
		session: session,
		hidden:  make([]float32, beatModelNumLayers*1*beatModelHidden),
		cell:    make([]float32, beatModelNumLayers*1*beatModelHidden),
		log:     slog.Default().With("component", "beat_model"),
	}
	return m, nil
}

func (m *BeatModel) ResetState() {
	for i := range m.hidden {
		m.hidden[i] = 0
	}
	for i := range m.cell {
		m.cell[i] = 0
	}
}

func (m *BeatModel) Close() error {
	if m == nil || m.session == nil {
		return nil
	}
	m.session.Destroy()
	return nil
}

// Infer runs one 272-dim feature frame through BeatNet, updating the
// model's recurrent state in place and returning the beat/downbeat
// activations. The model's third output class (non-beat) is discarded.
func (m *BeatModel) Infer(features []float32) (BeatModelOutput, error) {
	inputShape := ort.NewShape(1, 1, int64(beatModelInputDim))
	inputTensor, err := ort.NewTensor(inputShape, features)
	if err != nil {
		return BeatModelOutput{}, fmt.Errorf("beatkey: beat input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	hiddenShape := ort.NewShape(int64(beatModelNumLayers), 1, int64(beatModelHidden))
	hiddenTensor, err := ort.NewTensor(hiddenShape, m.hidden)
	if err != nil {
		return BeatModelOutput{}, fmt.Errorf("beatkey: hidden tensor: %w", err)
	}
	defer hiddenTensor.Destroy()

	cellTensor, err := ort.NewTensor(hiddenShape, m.cell)
	if err != nil {
		return BeatModelOutput{}, fmt.Errorf("beatkey: cell tensor: %w", err)
	}
	defer cellTensor.Destroy()

	outputs := []ort.Value{nil, nil, nil}
	if err := m.session.Run([]ort.Value{inputTensor, hiddenTensor, cellTensor}, outputs); err != nil {
		return BeatModelOutput{}, fmt.Errorf("beatkey: beat inference: %w", err)
	}
	for _, o := range outputs {
		if o != nil {
			defer o.Destroy()
		}
	}

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return BeatModelOutput{}, fmt.Errorf("beatkey: unexpected beat output tensor type")
	}
	probs := softmax3IfNeeded(outTensor.GetData())

	if hiddenOut, ok := outputs[1].(*ort.Tensor[float32]); ok {
		copy(m.hidden, hiddenOut.GetData())
	}
	if cellOut, ok := outputs[2].(*ort.Tensor[float32]); ok {
		copy(m.cell, cellOut.GetData())
	}

	// Output order: [beat, downbeat, non-beat] — only the first two are exposed.
	return BeatModelOutput{Beat: probs[0], Downbeat: probs[1]}, nil
}

// softmax3IfNeeded matches the reference model's leniency toward models that
// already emit a normalized 3-way distribution: skip softmax when the raw
// outputs already sum to ~1, otherwise apply a numerically stable softmax.
func softmax3IfNeeded(raw []float32) [3]float32 {
	var out [3]float32
	sum := raw[0] + raw[1] + raw[2]
	if float32(math.Abs(float64(sum-1.0))) <= 0.01 {
		out[0], out[1], out[2] = raw[0], raw[1], raw[2]
		return out
	}

	maxVal := raw[0]
	if raw[1] > maxVal {
		maxVal = raw[1]
	}
	if raw[2] > maxVal {
		maxVal = raw[2]
	}
	e0 := math.Exp(float64(raw[0] - maxVal))
	e1 := math.Exp(float64(raw[1] - maxVal))
	e2 := math.Exp(float64(raw[2] - maxVal))
	expSum := e0 + e1 + e2
	out[0] = float32(e0 / expSum)
	out[1] = float32(e1 / expSum)
	out[2] = float32(e2 / expSum)
	return out
}

// softmax24 applies a numerically stable softmax over the key model's
// 24 raw logits.
func softmax24(logits []float32) [24]float32 {
	var out [24]float32
	maxVal := logits[0]
	for _, v := range logits[1:24] {
		if v > maxVal {
			maxVal = v
		}
	}

	var sum float64
	var exps [24]float64
	for i := 0; i < 24; i++ {
		exps[i] = math.Exp(float64(logits[i] - maxVal))
		sum += exps[i]
	}
	for i := 0; i < 24; i++ {
		out[i] = float32(exps[i] / sum)
	}
	return out
}

// Camelot and conventional notation label tables, indexed by the key
// model's 24-class argmax: minor keys 0-11 in Camelot order (1A..12A),
// major keys 12-23 in Camelot order (1B..12B). The model outputs indices
// in Camelot wheel order, not chromatic order.
var camelotKeys = [24]string{
	// Minor keys (index 0-11): Camelot 1A through 12A
	"1A", "2A", "3A", "4A", "5A", "6A", "7A", "8A", "9A", "10A", "11A", "12A",
	// Major keys (index 12-23): Camelot 1B through 12B
	"1B", "2B", "3B", "4B", "5B", "6B", "7B", "8B", "9B", "10B", "11B", "12B",
}

var notationKeys = [24]string{
	// Minor keys (index 0-11): Camelot order
	"G#m", "Ebm", "Bbm", "Fm", "Cm", "Gm", "Dm", "Am", "Em", "Bm", "F#m", "C#m",
	// Major keys (index 12-23): Camelot order
	"B", "F#", "Db", "Ab", "Eb", "Bb", "F", "C", "G", "D", "A", "E",
}

// KeyModel wraps the MusicalKeyCNN ONNX session: a stateless 24-way
// softmax classifier over a variable-length CQT matrix.
type KeyModel struct {
	session *ort.DynamicAdvancedSession
	log     *slog.Logger
}

func LoadKeyModel(path string) (*KeyModel, error) {
	if err := ensureOrtEnvironment(); err != nil {
		return nil, fmt.Errorf("beatkey: onnxruntime init: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		path,
		[]string{"input"},
		[]string{"output"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("beatkey: load key model %s: %w", path, err)
	}

	return &KeyModel{session: session, log: slog.Default().With("component", "key_model")}, nil
}

func (m *KeyModel) Close() error {
	if m == nil || m.session == nil {
		return nil
	}
	m.session.Destroy()
	return nil
}

// KeyResult is the classifier's decision for one CQT matrix.
type KeyResult struct {
	Camelot    string
	Notation   string
	Confidence float32
	Valid      bool
}

// Infer runs a [T][105] CQT matrix (T frames, row-major, time-then-freq)
// through the key model. The matrix is transposed to [105][T] before
// building the input tensor, matching the model's expected
// [batch=1, channel=1, freq=105, time=T] layout.
func (m *KeyModel) Infer(cqtRows [][]float64) (KeyResult, error) {
	t := len(cqtRows)
	if t == 0 {
		return KeyResult{}, fmt.Errorf("beatkey: key inference on empty CQT matrix")
	}

	transposed := make([]float32, CqtNumBins*t)
	for time := 0; time < t; time++ {
		row := cqtRows[time]
		for freq := 0; freq < CqtNumBins; freq++ {
			transposed[freq*t+time] = float32(row[freq])
		}
	}

	inputShape := ort.NewShape(1, 1, int64(CqtNumBins), int64(t))
	inputTensor, err := ort.NewTensor(inputShape, transposed)
	if err != nil {
		return KeyResult{}, fmt.Errorf("beatkey: key input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return KeyResult{}, fmt.Errorf("beatkey: key inference: %w", err)
	}
	defer outputs[0].Destroy()

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return KeyResult{}, fmt.Errorf("beatkey: unexpected key output tensor type")
	}
	probs := softmax24(outTensor.GetData())

	bestIdx := 0
	bestVal := probs[0]
	for i := 1; i < len(probs); i++ {
		if probs[i] > bestVal {
			bestVal = probs[i]
			bestIdx = i
		}
	}

	return KeyResult{
		Camelot:    camelotKeys[bestIdx],
		Notation:   notationKeys[bestIdx],
		Confidence: bestVal,
		Valid:      true,
	}, nil
}
