package beatkey

import "math"

// Autocorrelation-based BPM estimation from beat/downbeat activations.
// Sums the two activation streams, computes their autocorrelation via FFT,
// finds the dominant periodicity in the plausible tempo range, and refines
// the estimate with parabolic interpolation before correcting for
// octave (half/double-time) errors against a DJ-typical range.
const (
	autocorrFPS      = 50.0
	autocorrMinBPM   = 60.0
	autocorrMaxBPM   = 180.0
	autocorrDJMinBPM = 75.0
	autocorrDJMaxBPM = 165.0
)

// EstimateBPM computes a BPM estimate from parallel beat/downbeat
// activation slices of equal length. Returns 0 if there isn't at least one
// second (autocorrFPS frames) of data.
func EstimateBPM(beatActivations, downbeatActivations []float64, applyOctaveCorrection bool) float64 {
	numFrames := len(beatActivations)
	if numFrames < int(autocorrFPS) {
		return 0
	}

	signal := make([]float64, numFrames)
	for i := 0; i < numFrames; i++ {
		signal[i] = beatActivations[i] + downbeatActivations[i]
	}

	autocorr := autocorrelationFFT(signal)

	minLag := int(autocorrFPS * 60.0 / autocorrMaxBPM) // 16 frames (16.67 truncated)
	maxLag := int(autocorrFPS * 60.0 / autocorrMinBPM) // 50 frames
	if maxLag >= numFrames {
		maxLag = numFrames - 1
	}
	if minLag >= maxLag {
		return 0
	}

	peakIdx := minLag
	peakVal := autocorr[minLag]
	for i := minLag + 1; i <= maxLag; i++ {
		if autocorr[i] > peakVal {
			peakVal = autocorr[i]
			peakIdx = i
		}
	}

	refinedPeakIdx := float64(peakIdx)
	if peakIdx > 0 && peakIdx < numFrames-1 {
		y0 := autocorr[peakIdx-1]
		y1 := autocorr[peakIdx]
		y2 := autocorr[peakIdx+1]
		if y1 > y0 && y1 > y2 {
			denom := y0 - 2.0*y1 + y2
			if math.Abs(denom) > 1e-8 {
				offset := 0.5 * (y0 - y2) / denom
				refinedPeakIdx = float64(peakIdx) + offset
			}
		}
	}

	bpm := math.Round(60.0 * autocorrFPS / refinedPeakIdx)

	if applyOctaveCorrection && bpm > 0 {
		doubled := bpm * 2.0
		halved := bpm / 2.0
		if bpm < autocorrDJMinBPM && doubled >= autocorrDJMinBPM && doubled <= autocorrDJMaxBPM {
			bpm = doubled
		} else if bpm > autocorrDJMaxBPM && halved >= autocorrDJMinBPM && halved <= autocorrDJMaxBPM {
			bpm = halved
		}
	}

	return bpm
}

// autocorrelationFFT computes the (linear, non-circular) autocorrelation of
// signal via the Wiener-Khinchin theorem: FFT, take the power spectrum,
// inverse FFT, normalize by the zero-lag energy.
func autocorrelationFFT(signal []float64) []float64 {
	n := len(signal)

	fftSize := 1
	for fftSize < 2*n {
		fftSize *= 2
	}

	padded := make([]complex128, fftSize)
	for i := 0; i < n; i++ {
		padded[i] = complex(signal[i], 0)
	}

	fft := NewComplexFFT(fftSize)
	spectrum := fft.Forward(padded)

	power := make([]complex128, fftSize)
	for k, z := range spectrum {
		re, im := real(z), imag(z)
		power[k] = complex(re*re+im*im, 0)
	}

	inverse := fft.Inverse(power)

	autocorr := make([]float64, n)
	norm := real(inverse[0]) + 1e-8
	for i := 0; i < n; i++ {
		autocorr[i] = real(inverse[i]) / norm
	}
	return autocorr
}
