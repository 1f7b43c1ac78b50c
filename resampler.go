package beatkey

import "math"

// Resampler2to1 downsamples by a factor of two using a windowed-sinc
// low-pass FIR filter, with a Blackman window for stopband attenuation.
// It supports one-shot block processing (Process, no history) and
// streaming processing (ProcessStreaming) that carries unconsumed
// samples across calls, initialized to filterLength-1 zeros, so that
// feeding a signal through ProcessStreaming in arbitrary chunk sizes
// always produces the same output regardless of how it's chunked — the
// carried-over samples start exactly at the next window's position, so
// the decimation phase survives odd-sized chunks too. Process and
// ProcessStreaming are not equivalent to each other: ProcessStreaming's
// zero-initialized leading history shifts its windows, so its output j is
// centred on input sample ratio*j - filterLength/2, while Process's output
// i is centred on input sample ratio*i.
type Resampler2to1 struct {
	ratio        int
	filterLength int
	coefficients []float64
	pending      []float64 // unconsumed samples, positioned at the next window's start
}

const resamplerFilterLength = 127
const resamplerCutoffNumerator = 0.9

// NewResampler2to1 builds a 2:1 downsampling filter for the given
// input/output rate pair. Only integer ratios are supported.
func NewResampler2to1(inputRate, outputRate int) *Resampler2to1 {
	ratio := inputRate / outputRate
	cutoff := resamplerCutoffNumerator / float64(ratio)
	coeffs := generateSincFilter(resamplerFilterLength, cutoff)
	r := &Resampler2to1{
		ratio:        ratio,
		filterLength: resamplerFilterLength,
		coefficients: coeffs,
	}
	r.pending = make([]float64, r.filterLength-1)
	return r
}

func generateSincFilter(length int, cutoff float64) []float64 {
	coeffs := make([]float64, length)
	halfLen := length / 2
	sum := 0.0
	for i := 0; i < length; i++ {
		n := float64(i - halfLen)

		var sinc float64
		if math.Abs(n) < 1e-6 {
			sinc = 1.0
		} else {
			sinc = math.Sin(math.Pi*cutoff*n) / (math.Pi * n)
		}

		window := 0.42 - 0.5*math.Cos(2.0*math.Pi*float64(i)/float64(length-1)) +
			0.08*math.Cos(4.0*math.Pi*float64(i)/float64(length-1))

		coeffs[i] = sinc * window
		sum += coeffs[i]
	}

	for i := 0; i < length; i++ {
		coeffs[i] /= sum
	}
	return coeffs
}

// OutputSize returns the number of samples Process would produce for the
// given input length.
func (r *Resampler2to1) OutputSize(inputSize int) int {
	return inputSize / r.ratio
}

// Delay returns the filter's group delay in output samples.
func (r *Resampler2to1) Delay() int {
	return (r.filterLength / 2) / r.ratio
}

// Reset clears the streaming history, as if no samples had ever been pushed.
func (r *Resampler2to1) Reset() {
	r.pending = make([]float64, r.filterLength-1)
}

// Process filters and decimates a single self-contained block, with no
// history carried in or out. The first Delay output samples are edge
// effects of the filter's startup transient.
func (r *Resampler2to1) Process(input []float64) []float64 {
	halfLen := r.filterLength / 2
	output := make([]float64, r.OutputSize(len(input)))

	for i := range output {
		n := i * r.ratio
		sum := 0.0
		for k := 0; k < r.filterLength; k++ {
			idx := n - halfLen + k
			if idx >= 0 && idx < len(input) {
				sum += input[idx] * r.coefficients[k]
			}
		}
		output[i] = sum
	}
	return output
}

// ProcessStreaming filters and decimates input using samples carried over
// from the previous call, writing at most len(output) samples and
// returning the count actually produced. Feeding the same signal through
// repeated ProcessStreaming calls produces identical output regardless of
// how it's split into chunks: the pending carry-over always starts at the
// exact sample where the next window begins, so the decimation phase is
// never reset to a fixed offset the way a fixed-size history would.
func (r *Resampler2to1) ProcessStreaming(input []float64, output []float64) int {
	buffer := make([]float64, len(r.pending)+len(input))
	copy(buffer, r.pending)
	copy(buffer[len(r.pending):], input)

	outputIdx := 0
	start := 0

	for start+r.filterLength <= len(buffer) && outputIdx < len(output) {
		sum := 0.0
		window := buffer[start : start+r.filterLength]
		for k := 0; k < r.filterLength; k++ {
			sum += window[k] * r.coefficients[k]
		}
		output[outputIdx] = sum
		outputIdx++
		start += r.ratio
	}

	r.pending = append(r.pending[:0], buffer[start:]...)

	return outputIdx
}
