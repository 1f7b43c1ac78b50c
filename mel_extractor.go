package beatkey

import "math"

// Mel extractor constants, an exact port of madmom's LogarithmicFilterbank
// as used by BeatNet's log_spect preprocessing.
const (
	MelSampleRate      = 22050
	MelHopLength       = 441
	MelWinLength       = 1411
	MelFFTSize         = 1411
	MelBandsPerOctave  = 24
	MelFMin            = 30.0
	MelFMax            = 17000.0
	MelFRef            = 440.0
	MelFeatureDim      = 272
	melStreamPadding   = MelWinLength / 2 // 705
)

// logFilterbank builds a bank of triangular filters over logarithmically
// spaced center frequencies, matching madmom's LogarithmicFilterbank.
type logFilterbank struct {
	numBins  int // FFT bins considered, excluding Nyquist
	numBands int
	filters  [][]float64
}

func newLogFilterbank(fftSize, sampleRate, bandsPerOctave int, fMin, fMax float64) *logFilterbank {
	numBins := fftSize / 2

	binFrequencies := make([]float64, numBins)
	for i := 0; i < numBins; i++ {
		binFrequencies[i] = float64(i) * float64(sampleRate) / float64(numBins*2)
	}

	frequencies := logFrequencies(bandsPerOctave, fMin, fMax, MelFRef)
	bins := frequencies2bins(frequencies, binFrequencies)

	fb := &logFilterbank{numBins: numBins}

	for i := 0; i+2 < len(bins); i++ {
		start := bins[i]
		center := bins[i+1]
		stop := bins[i+2]

		if stop-start < 2 {
			center = start
			stop = start + 1
		}

		filter := make([]float64, numBins)
		relCenter := center - start
		relStop := stop - start

		for k := 0; k < relCenter; k++ {
			val := float64(k) / float64(relCenter)
			if start+k < numBins {
				filter[start+k] = val
			}
		}
		for k := 0; k < relStop-relCenter; k++ {
			val := 1.0 - float64(k)/float64(relStop-relCenter)
			if center+k < numBins {
				filter[center+k] = val
			}
		}

		sum := 0.0
		for _, v := range filter {
			sum += v
		}
		if sum > 0 {
			for k := range filter {
				filter[k] /= sum
			}
		}

		fb.filters = append(fb.filters, filter)
		fb.numBands++
	}

	return fb
}

func (fb *logFilterbank) apply(magnitude []float64, output []float64) {
	for m, filter := range fb.filters {
		sum := 0.0
		for k := 0; k < fb.numBins; k++ {
			sum += magnitude[k] * filter[k]
		}
		output[m] = sum
	}
}

// logFrequencies matches madmom.audio.filters.log_frequencies.
func logFrequencies(bandsPerOctave int, fMin, fMax, fRef float64) []float64 {
	log2Fmin := math.Log2(fMin / fRef)
	log2Fmax := math.Log2(fMax / fRef)

	left := int(math.Floor(log2Fmin * float64(bandsPerOctave)))
	right := int(math.Ceil(log2Fmax * float64(bandsPerOctave)))

	var frequencies []float64
	for i := left; i < right; i++ {
		freq := fRef * math.Pow(2.0, float64(i)/float64(bandsPerOctave))
		if freq >= fMin && freq <= fMax {
			frequencies = append(frequencies, freq)
		}
	}
	return frequencies
}

// frequencies2bins matches madmom's frequencies2bins with unique_bins=True:
// nearest-bin mapping via searchsorted, deduplicated while preserving order.
func frequencies2bins(frequencies, binFrequencies []float64) []int {
	indices := make([]int, 0, len(frequencies))

	for _, freq := range frequencies {
		idx := lowerBound(binFrequencies, freq)
		if idx < 1 {
			idx = 1
		}
		if idx > len(binFrequencies)-1 {
			idx = len(binFrequencies) - 1
		}

		left := binFrequencies[idx-1]
		right := binFrequencies[idx]
		if freq-left < right-freq {
			idx--
		}
		indices = append(indices, idx)
	}

	unique := indices[:0:0]
	for _, idx := range indices {
		if len(unique) == 0 || unique[len(unique)-1] != idx {
			unique = append(unique, idx)
		}
	}
	return unique
}

func lowerBound(sorted []float64, value float64) int {
	lo, hi := 0, len(sorted)
	for lo < hi {
		mid := (lo + hi) / 2
		if sorted[mid] < value {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func hannWindowSymmetric(length int) []float64 {
	w := make([]float64, length)
	for i := 0; i < length; i++ {
		w[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(length-1)))
	}
	return w
}

// MelExtractor computes one 272-dim BeatNet feature frame at a time: 136
// log-mel bands followed by their half-wave-rectified frame-to-frame diff.
type MelExtractor struct {
	fft             *RealFFT
	filterbank      *logFilterbank
	window          []float64
	magnitude       []float64
	filtered        []float64
	logMel          []float64
	previousLogMel  []float64
	hasPrevious     bool
}

func NewMelExtractor() *MelExtractor {
	fb := newLogFilterbank(MelFFTSize, MelSampleRate, MelBandsPerOctave, MelFMin, MelFMax)
	nBands := fb.numBands
	return &MelExtractor{
		fft:            NewRealFFT(MelFFTSize),
		filterbank:     fb,
		window:         hannWindowSymmetric(MelWinLength),
		magnitude:      make([]float64, MelFFTSize/2),
		filtered:       make([]float64, nBands),
		logMel:         make([]float64, nBands),
		previousLogMel: make([]float64, nBands),
	}
}

func (m *MelExtractor) NumBands() int { return m.filterbank.numBands }

func (m *MelExtractor) Reset() {
	m.hasPrevious = false
	for i := range m.previousLogMel {
		m.previousLogMel[i] = 0
	}
}

// ProcessFrame windows and transforms a single MelWinLength frame, writing
// MelFeatureDim (272) features into out: log-mel bands, then their diff.
func (m *MelExtractor) ProcessFrame(frame []float64, out []float64) {
	windowed := make([]float64, MelFFTSize)
	n := len(frame)
	if n > MelWinLength {
		n = MelWinLength
	}
	for i := 0; i < n; i++ {
		windowed[i] = frame[i] * m.window[i]
	}

	spectrum := m.fft.Forward(windowed)
	filterbankBins := MelFFTSize / 2
	for i := 0; i < filterbankBins; i++ {
		re, im := real(spectrum[i]), imag(spectrum[i])
		m.magnitude[i] = math.Sqrt(re*re + im*im)
	}

	m.filterbank.apply(m.magnitude, m.filtered)

	nBands := m.filterbank.numBands
	for i := 0; i < nBands; i++ {
		m.logMel[i] = math.Log10(1.0 + m.filtered[i])
	}

	diff := out[nBands : 2*nBands]
	if !m.hasPrevious {
		for i := range diff {
			diff[i] = 0
		}
		m.hasPrevious = true
	} else {
		for i := 0; i < nBands; i++ {
			d := m.logMel[i] - m.previousLogMel[i]
			if d > 0 {
				diff[i] = d
			} else {
				diff[i] = 0
			}
		}
	}

	copy(m.previousLogMel, m.logMel)
	copy(out[:nBands], m.logMel)
}

// StreamingMelExtractor frames an arbitrary-length streaming audio signal
// into successive MelFeatureDim feature vectors at the beat-model frame
// rate (50Hz at 22050Hz), using centered framing with zero pre-padding.
type StreamingMelExtractor struct {
	extractor             *MelExtractor
	buffer                []float64
	writePos              int
	samplesUntilNextFrame int
}

func NewStreamingMelExtractor() *StreamingMelExtractor {
	s := &StreamingMelExtractor{
		extractor: NewMelExtractor(),
		buffer:    make([]float64, MelWinLength+MelHopLength),
	}
	s.writePos = melStreamPadding
	s.samplesUntilNextFrame = MelWinLength - melStreamPadding
	return s
}

func (s *StreamingMelExtractor) Reset() {
	s.extractor.Reset()
	for i := range s.buffer {
		s.buffer[i] = 0
	}
	s.writePos = melStreamPadding
	s.samplesUntilNextFrame = MelWinLength - melStreamPadding
}

// Push consumes samples one at a time, stopping as soon as maxFrames
// features have been produced (unconsumed samples are simply not read).
// features must hold at least maxFrames*MelFeatureDim entries.
func (s *StreamingMelExtractor) Push(samples []float64, features []float64, maxFrames int) int {
	bufferSize := len(s.buffer)
	framesProduced := 0
	frame := make([]float64, MelWinLength)

	for i := 0; i < len(samples) && framesProduced < maxFrames; i++ {
		s.buffer[s.writePos%bufferSize] = samples[i]
		s.writePos++
		s.samplesUntilNextFrame--

		if s.samplesUntilNextFrame <= 0 {
			startPos := s.writePos - MelWinLength
			for j := 0; j < MelWinLength; j++ {
				idx := ((startPos+j)%bufferSize + bufferSize) % bufferSize
				frame[j] = s.buffer[idx]
			}

			s.extractor.ProcessFrame(frame, features[framesProduced*MelFeatureDim:(framesProduced+1)*MelFeatureDim])
			framesProduced++

			s.samplesUntilNextFrame = MelHopLength
		}
	}

	return framesProduced
}
