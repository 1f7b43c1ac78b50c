package beatkey

import "log/slog"

const (
	EngineSampleRate    = 44100
	EngineBPMSampleRate = MelSampleRate // 22050
	EngineKeySampleRate = CqtSampleRate // 44100
	EngineFeatureDim    = MelFeatureDim

	keyMinFrames         = 100
	keyInferenceInterval = 25
	maxCQTFramesPerCall  = 20
	maxMelFramesPerCall  = 64
)

// FrameResult is a single BPM-pipeline frame's beat/downbeat activations.
type FrameResult struct {
	BeatActivation     float32
	DownbeatActivation float32
}

// Engine threads a 44.1kHz audio stream through the key pipeline (CQT ->
// KeyModel) and the BPM pipeline (resample -> mel -> BeatNet ->
// autocorrelation) behind one ProcessAudio call. The two pipelines have
// independent load state: a caller may run either, both, or neither.
type Engine struct {
	melExtractor *StreamingMelExtractor
	beatModel    *BeatModel
	resampler    *Resampler2to1
	activations  *ActivationRing

	cqtExtractor *StreamingCqtExtractor
	keyModel     *KeyModel
	cqtBuffer    [][]float64 // row-major [time][freq], grows unboundedly until Reset
	cqtFrameCount int
	cqtFramesSinceInference int
	currentKey    KeyResult
	keyInferences int

	log *slog.Logger
}

func NewEngine() *Engine {
	return &Engine{
		melExtractor: NewStreamingMelExtractor(),
		resampler:    NewResampler2to1(EngineSampleRate, EngineBPMSampleRate),
		activations:  NewActivationRing(ActivationRingDefaultCapacity),
		cqtExtractor: NewStreamingCqtExtractor(),
		log:          slog.Default().With("component", "engine"),
	}
}

// Reset clears all processing state on both pipelines, releasing the CQT
// buffer's backing memory — the only way to reclaim it, since it otherwise
// grows for the lifetime of the engine.
func (e *Engine) Reset() {
	e.melExtractor.Reset()
	if e.beatModel != nil {
		e.beatModel.ResetState()
	}
	e.activations.Clear()
	e.resampler.Reset()

	e.cqtExtractor.Reset()
	e.cqtBuffer = nil
	e.cqtFrameCount = 0
	e.cqtFramesSinceInference = 0
	e.keyInferences = 0
	e.currentKey = KeyResult{}
}

// LoadBeatModel loads the BeatNet ONNX model. On failure the BPM pipeline
// stays unloaded (BeatReady keeps returning false).
func (e *Engine) LoadBeatModel(path string) error {
	m, err := LoadBeatModel(path)
	if err != nil {
		e.log.Warn("beat model load failed", "path", path, "error", err)
		return err
	}
	e.beatModel = m
	return nil
}

func (e *Engine) BeatReady() bool { return e.beatModel != nil }

// WarmUpBeat runs a handful of dummy inferences to trigger any lazy model
// compilation, then discards the resulting recurrent state.
func (e *Engine) WarmUpBeat() error {
	if !e.BeatReady() {
		return errNotReady("beat model")
	}
	dummy := make([]float32, EngineFeatureDim)
	for i := 0; i < 5; i++ {
		if _, err := e.beatModel.Infer(dummy); err != nil {
			return err
		}
	}
	e.beatModel.ResetState()
	return nil
}

func (e *Engine) CurrentBPM() float64  { return e.activations.CachedBPM() }
func (e *Engine) BPMFrameCount() int   { return e.activations.Size() }

// LoadKeyModel loads the MusicalKeyCNN ONNX model.
func (e *Engine) LoadKeyModel(path string) error {
	m, err := LoadKeyModel(path)
	if err != nil {
		e.log.Warn("key model load failed", "path", path, "error", err)
		return err
	}
	e.keyModel = m
	return nil
}

func (e *Engine) KeyReady() bool { return e.keyModel != nil }

func (e *Engine) WarmUpKey() error {
	if !e.KeyReady() {
		return errNotReady("key model")
	}
	dummy := make([][]float64, 1)
	dummy[0] = make([]float64, CqtNumBins)
	_, err := e.keyModel.Infer(dummy)
	return err
}

func (e *Engine) CurrentKey() KeyResult { return e.currentKey }
func (e *Engine) KeyFrameCount() int    { return e.cqtFrameCount }

func (e *Engine) Close() error {
	if err := e.beatModel.Close(); err != nil {
		return err
	}
	return e.keyModel.Close()
}

// ProcessAudio feeds 44.1kHz samples through the key pipeline, then the BPM
// pipeline (in that order — key inference for this call's frames must
// complete before the audio is resampled and consumed by the BPM side).
// out may be nil; when non-nil it receives up to len(out) BPM frame
// results and the count actually produced is returned; when nil the total
// number of BPM frames produced (bounded only by inference count, not
// output capacity) is returned.
func (e *Engine) ProcessAudio(samples []float32, out []FrameResult) int {
	if e.KeyReady() {
		e.runKeyPipeline(samples)
	}

	if !e.BeatReady() {
		return 0
	}

	samples64 := make([]float64, len(samples))
	for i, s := range samples {
		samples64[i] = float64(s)
	}

	maxOutput := e.resampler.OutputSize(len(samples64)) + 64
	resampled := make([]float64, maxOutput)
	n := e.resampler.ProcessStreaming(samples64, resampled)

	return e.processAudioForBPM(resampled[:n], out)
}

// ProcessAudioForBPM runs the BPM pipeline directly on 22.05kHz input, with
// no resampling step and no interaction with the key pipeline — the legacy
// entry point for hosts that already have audio at the model's native rate.
func (e *Engine) ProcessAudioForBPM(samples []float32, out []FrameResult) int {
	if !e.BeatReady() {
		return 0
	}
	samples64 := make([]float64, len(samples))
	for i, s := range samples {
		samples64[i] = float64(s)
	}
	return e.processAudioForBPM(samples64, out)
}

func (e *Engine) processAudioForBPM(samples []float64, out []FrameResult) int {
	if !e.BeatReady() {
		return 0
	}

	features := make([]float64, maxMelFramesPerCall*EngineFeatureDim)
	numFrames := e.melExtractor.Push(samples, features, maxMelFramesPerCall)
	if numFrames == 0 {
		return 0
	}

	resultsProduced := 0
	totalProduced := 0

	featuresF32 := make([]float32, EngineFeatureDim)
	for i := 0; i < numFrames; i++ {
		frame := features[i*EngineFeatureDim : (i+1)*EngineFeatureDim]
		for j, v := range frame {
			featuresF32[j] = float32(v)
		}

		output, err := e.beatModel.Infer(featuresF32)
		if err != nil {
			e.log.Warn("beat inference skipped", "error", err)
			continue
		}

		e.activations.Push(float64(output.Beat), float64(output.Downbeat))
		totalProduced++

		if out != nil && resultsProduced < len(out) {
			out[resultsProduced] = FrameResult{BeatActivation: output.Beat, DownbeatActivation: output.Downbeat}
			resultsProduced++
		}
	}

	if out != nil {
		return resultsProduced
	}
	return totalProduced
}

func (e *Engine) runKeyPipeline(samples []float32) {
	samples64 := make([]float64, len(samples))
	for i, s := range samples {
		samples64[i] = float64(s)
	}

	cqtFrames := make([]float64, CqtNumBins*maxCQTFramesPerCall)
	produced := e.cqtExtractor.Push(samples64, cqtFrames, maxCQTFramesPerCall)

	for i := 0; i < produced; i++ {
		row := make([]float64, CqtNumBins)
		copy(row, cqtFrames[i*CqtNumBins:(i+1)*CqtNumBins])
		e.cqtBuffer = append(e.cqtBuffer, row)
		e.cqtFrameCount++
		e.cqtFramesSinceInference++
	}

	hasMinFrames := e.cqtFrameCount >= keyMinFrames
	shouldInfer := hasMinFrames && (e.keyInferences == 0 || e.cqtFramesSinceInference >= keyInferenceInterval)

	if shouldInfer {
		e.runKeyInference()
	}
}

func (e *Engine) runKeyInference() {
	if !e.KeyReady() || e.cqtFrameCount < keyMinFrames {
		return
	}
	result, err := e.keyModel.Infer(e.cqtBuffer)
	if err != nil {
		e.log.Warn("key inference skipped", "error", err)
		return
	}
	e.keyInferences++
	e.cqtFramesSinceInference = 0
	e.currentKey = result
}
