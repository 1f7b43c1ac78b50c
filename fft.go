package beatkey

import (
	"math"

	"github.com/runningwild/go-fftw/fftw"
)

// RealFFT computes the one-sided forward FFT of a real-valued signal of
// arbitrary length n, returning n/2+1 complex bins (DC through Nyquist).
// The signal is embedded in a complex FFTW array with zero imaginary parts,
// the same convention feature extraction used against go-fftw.
type RealFFT struct {
	n     int
	outN  int
	in    *fftw.Array
	out   *fftw.Array
	plan  *fftw.Plan
}

func NewRealFFT(n int) *RealFFT {
	outN := n/2 + 1
	in := fftw.NewArray(n)
	out := fftw.NewArray(outN)
	plan := fftw.NewPlan(in, out, fftw.Forward, fftw.Estimate)
	return &RealFFT{n: n, outN: outN, in: in, out: out, plan: plan}
}

func (f *RealFFT) Len() int    { return f.n }
func (f *RealFFT) OutLen() int { return f.outN }

// Forward runs the transform over samples (padded or truncated to n) and
// returns the output bins copied into a newly allocated slice, so the
// result stays valid across later calls.
func (f *RealFFT) Forward(samples []float64) []complex128 {
	j := 0
	for ; j < len(samples) && j < f.n; j++ {
		f.in.Set(j, complex(samples[j], 0))
	}
	for ; j < f.n; j++ {
		f.in.Set(j, 0)
	}
	f.plan.Execute()

	out := make([]complex128, f.outN)
	for i := 0; i < f.outN; i++ {
		out[i] = f.out.At(i)
	}
	return out
}

// ComplexFFT is a power-of-two complex-to-complex FFT used by the
// autocorrelation tempo estimator, which needs both a forward and an
// inverse transform over the same length.
type ComplexFFT struct {
	n          int
	in         *fftw.Array
	out        *fftw.Array
	forward    *fftw.Plan
	inverse    *fftw.Plan
}

func NewComplexFFT(n int) *ComplexFFT {
	in := fftw.NewArray(n)
	out := fftw.NewArray(n)
	return &ComplexFFT{
		n:       n,
		in:      in,
		out:     out,
		forward: fftw.NewPlan(in, out, fftw.Forward, fftw.Estimate),
		inverse: fftw.NewPlan(out, in, fftw.Backward, fftw.Estimate),
	}
}

func (c *ComplexFFT) Len() int { return c.n }

// Forward is unscaled, matching FFTW's convention.
func (c *ComplexFFT) Forward(samples []complex128) []complex128 {
	for i := 0; i < c.n; i++ {
		if i < len(samples) {
			c.in.Set(i, samples[i])
		} else {
			c.in.Set(i, 0)
		}
	}
	c.forward.Execute()
	out := make([]complex128, c.n)
	for i := 0; i < c.n; i++ {
		out[i] = c.out.At(i)
	}
	return out
}

// Inverse scales by 1/n, the usual pairing with an unscaled forward.
func (c *ComplexFFT) Inverse(spectrum []complex128) []complex128 {
	for i := 0; i < c.n; i++ {
		c.out.Set(i, spectrum[i])
	}
	c.inverse.Execute()
	scale := 1.0 / float64(c.n)
	result := make([]complex128, c.n)
	for i := 0; i < c.n; i++ {
		result[i] = c.in.At(i) * complex(scale, 0)
	}
	return result
}

// Magnitude returns |z| for each complex bin.
func Magnitude(spectrum []complex128) []float64 {
	mags := make([]float64, len(spectrum))
	for i, z := range spectrum {
		re, im := real(z), imag(z)
		mags[i] = math.Sqrt(re*re + im*im)
	}
	return mags
}

// Power returns |z|^2 for each complex bin.
func Power(spectrum []complex128) []float64 {
	pow := make([]float64, len(spectrum))
	for i, z := range spectrum {
		re, im := real(z), imag(z)
		pow[i] = re*re + im*im
	}
	return pow
}
