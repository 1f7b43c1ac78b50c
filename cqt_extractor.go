package beatkey

import "math"

// CQT extractor constants, matching the librosa.cqt() configuration used
// for MusicalKeyCNN's key-detection input.
const (
	CqtSampleRate     = 44100
	CqtHopLength      = 8820
	CqtNumBins        = 105
	CqtBinsPerOctave  = 24
	CqtFMin           = 65.0
)

type cqtKernel struct {
	centerFreq   float64
	filterLength int
	kernel       []complex128
}

func computeQFactor(binsPerOctave int) float64 {
	return 1.0 / (math.Pow(2.0, 1.0/float64(binsPerOctave)) - 1.0)
}

func computeCenterFrequencies(nBins int, fMin float64, binsPerOctave int) []float64 {
	freqs := make([]float64, nBins)
	for k := 0; k < nBins; k++ {
		freqs[k] = fMin * math.Pow(2.0, float64(k)/float64(binsPerOctave))
	}
	return freqs
}

func computeFilterLengths(freqs []float64, q float64, sampleRate int) []int {
	lengths := make([]int, len(freqs))
	for k, f := range freqs {
		lengths[k] = int(math.Ceil(q * float64(sampleRate) / f))
	}
	return lengths
}

// createHannWindowPeriodic matches librosa's fftbins=True (asymmetric) Hann
// window, distinct from the symmetric window the mel extractor uses.
func createHannWindowPeriodic(length int) []float64 {
	w := make([]float64, length)
	for i := 0; i < length; i++ {
		w[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(length)))
	}
	return w
}

func createCqtKernel(centerFreq float64, filterLength, sampleRate int) cqtKernel {
	window := createHannWindowPeriodic(filterLength)
	freqRatio := 2.0 * math.Pi * centerFreq / float64(sampleRate)

	k := cqtKernel{centerFreq: centerFreq, filterLength: filterLength, kernel: make([]complex128, filterLength)}
	for n := 0; n < filterLength; n++ {
		phase := freqRatio * float64(n)
		k.kernel[n] = complex(window[n]*math.Cos(phase), window[n]*math.Sin(phase))
	}
	return k
}

// CqtExtractor computes a single 105-bin CQT frame at a time via a direct
// time-domain conjugate dot-product against precomputed per-bin kernels,
// rather than librosa's FFT-based approach — the frame lengths here (up to
// ~23k samples) are consumed once per 8820-sample hop, not per output bin,
// so the naive product is cheap enough and avoids an extra FFT plan per bin.
type CqtExtractor struct {
	kernels           []cqtKernel
	centerFrequencies []float64
	filterLengths     []int
	maxFilterLength   int
}

func NewCqtExtractor() *CqtExtractor {
	q := computeQFactor(CqtBinsPerOctave)
	freqs := computeCenterFrequencies(CqtNumBins, CqtFMin, CqtBinsPerOctave)
	lengths := computeFilterLengths(freqs, q, CqtSampleRate)

	maxLen := 0
	for _, l := range lengths {
		if l > maxLen {
			maxLen = l
		}
	}

	kernels := make([]cqtKernel, CqtNumBins)
	for k := 0; k < CqtNumBins; k++ {
		kernels[k] = createCqtKernel(freqs[k], lengths[k], CqtSampleRate)
	}

	return &CqtExtractor{
		kernels:           kernels,
		centerFrequencies: freqs,
		filterLengths:     lengths,
		maxFilterLength:   maxLen,
	}
}

func (e *CqtExtractor) MaxFilterLength() int { return e.maxFilterLength }
func (e *CqtExtractor) CenterFrequencies() []float64 { return e.centerFrequencies }
func (e *CqtExtractor) FilterLengths() []int { return e.filterLengths }

func (e *CqtExtractor) Reset() {}

// ProcessFrame computes all 105 CQT bins from a centered window of audio;
// audio must be at least as long as the longest per-bin kernel.
func (e *CqtExtractor) ProcessFrame(audio []float64, cqtBins []float64) {
	numSamples := len(audio)

	for k := 0; k < CqtNumBins; k++ {
		kernel := e.kernels[k]
		length := kernel.filterLength

		if numSamples < length {
			cqtBins[k] = 0
			continue
		}

		offset := (numSamples - length) / 2
		audioStart := audio[offset:]

		realSum, imagSum := 0.0, 0.0
		for n := 0; n < length; n++ {
			sample := audioStart[n]
			realSum += sample * real(kernel.kernel[n])
			imagSum -= sample * imag(kernel.kernel[n])
		}

		norm := math.Sqrt(float64(length)) * 0.5
		realSum /= norm
		imagSum /= norm

		magnitude := math.Sqrt(realSum*realSum + imagSum*imagSum)
		cqtBins[k] = math.Log1p(magnitude)
	}
}

// StreamingCqtExtractor frames a streaming 44.1kHz signal into successive
// 105-dim CQT frames at the key-model frame rate (hop 8820), with centered
// framing and a frame counter that always advances once a frame's samples
// have arrived, even if the caller's output capacity has run out — the key
// pipeline needs frame-count bookkeeping to stay correct across calls that
// don't all produce output.
type StreamingCqtExtractor struct {
	extractor       *CqtExtractor
	buffer          []float64
	writePos        int64
	samplesReceived int64
	frameCount      int64
	padding         int
}

func NewStreamingCqtExtractor() *StreamingCqtExtractor {
	e := NewCqtExtractor()
	bufferSize := e.maxFilterLength + CqtHopLength
	padding := e.maxFilterLength / 2

	s := &StreamingCqtExtractor{
		extractor: e,
		buffer:    make([]float64, bufferSize),
		padding:   padding,
	}
	s.writePos = int64(padding)
	return s
}

func (s *StreamingCqtExtractor) Reset() {
	for i := range s.buffer {
		s.buffer[i] = 0
	}
	s.writePos = int64(s.padding)
	s.samplesReceived = 0
	s.frameCount = 0
	s.extractor.Reset()
}

func (s *StreamingCqtExtractor) FrameCount() int {
	if s.frameCount > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(s.frameCount)
}

// Push consumes every sample regardless of maxFrames, advancing frameCount
// for every frame boundary crossed, and writes at most maxFrames CQT
// frames into cqtFrames. Returns the number of frames actually written.
func (s *StreamingCqtExtractor) Push(samples []float64, cqtFrames []float64, maxFrames int) int {
	bufferSize := int64(len(s.buffer))
	maxFilterLen := s.extractor.maxFilterLength
	framesProduced := 0

	for i := 0; i < len(samples); i++ {
		s.buffer[s.writePos%bufferSize] = samples[i]
		s.writePos++
		s.samplesReceived++

		samplesNeeded := s.frameCount*int64(CqtHopLength) + int64(maxFilterLen/2)

		if s.samplesReceived >= samplesNeeded {
			frameCenter := s.frameCount * int64(CqtHopLength)

			if framesProduced < maxFrames {
				frameAudio := make([]float64, maxFilterLen)
				startSample := frameCenter - int64(maxFilterLen/2)
				for j := 0; j < maxFilterLen; j++ {
					sampleIdx := startSample + int64(j)
					bufIdx := (int64(s.padding) + sampleIdx) % bufferSize
					if bufIdx < 0 {
						bufIdx += bufferSize
					}
					frameAudio[j] = s.buffer[bufIdx]
				}

				s.extractor.ProcessFrame(frameAudio, cqtFrames[framesProduced*CqtNumBins:(framesProduced+1)*CqtNumBins])
				framesProduced++
			}

			s.frameCount++
		}
	}

	return framesProduced
}
