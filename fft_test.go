package beatkey_test

import (
	"math"
	"testing"

	"github.com/comfortfood/beatkey"
	"github.com/stretchr/testify/assert"
)

func Test_RealFFT_DCBinIsSum(t *testing.T) {
	fft := beatkey.NewRealFFT(8)
	samples := []float64{1, 1, 1, 1, 1, 1, 1, 1}
	out := fft.Forward(samples)

	assert.Len(t, out, 5)
	assert.InDelta(t, 8.0, real(out[0]), 1e-9)
	assert.InDelta(t, 0.0, imag(out[0]), 1e-9)
}

func Test_RealFFT_OutputLength(t *testing.T) {
	fft := beatkey.NewRealFFT(1411)
	assert.Equal(t, 706, fft.OutLen())
}

func Test_ComplexFFT_ForwardInverseRoundTrip(t *testing.T) {
	fft := beatkey.NewComplexFFT(16)
	signal := make([]complex128, 16)
	for i := range signal {
		signal[i] = complex(math.Sin(float64(i)), 0)
	}

	spectrum := fft.Forward(signal)
	reconstructed := fft.Inverse(spectrum)

	for i := range signal {
		assert.InDelta(t, real(signal[i]), real(reconstructed[i]), 1e-6)
	}
}

func Test_Magnitude(t *testing.T) {
	mags := beatkey.Magnitude([]complex128{complex(3, 4)})
	assert.InDelta(t, 5.0, mags[0], 1e-9)
}
