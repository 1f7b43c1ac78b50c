package beatkey_test

import (
	"math"
	"testing"

	"github.com/comfortfood/beatkey"
	"github.com/stretchr/testify/assert"
)

func testSignal(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.Sin(2 * math.Pi * 440 * float64(i) / 44100)
	}
	return s
}

func Test_Resampler_OutputSizeHalvesInput(t *testing.T) {
	r := beatkey.NewResampler2to1(44100, 22050)
	assert.Equal(t, 512, r.OutputSize(1024))
}

// Feeding a signal to ProcessStreaming in arbitrary chunk sizes must
// produce exactly the same output as feeding it in one call, since the
// history carried between calls is what makes chunk size invisible to the
// engine.
func Test_Resampler_StreamingIsChunkSizeInvariant(t *testing.T) {
	signal := testSignal(4410)

	whole := beatkey.NewResampler2to1(44100, 22050)
	wholeBuf := make([]float64, whole.OutputSize(len(signal))+64)
	nWhole := whole.ProcessStreaming(signal, wholeBuf)
	wholeOut := wholeBuf[:nWhole]

	chunked := beatkey.NewResampler2to1(44100, 22050)
	chunkSize := 137 // deliberately not a divisor of len(signal)
	var chunkedOut []float64
	for start := 0; start < len(signal); start += chunkSize {
		end := start + chunkSize
		if end > len(signal) {
			end = len(signal)
		}
		buf := make([]float64, chunkSize+8)
		n := chunked.ProcessStreaming(signal[start:end], buf)
		chunkedOut = append(chunkedOut, buf[:n]...)
	}

	assert.Equal(t, wholeOut, chunkedOut)
}

func Test_Resampler_Reset(t *testing.T) {
	r := beatkey.NewResampler2to1(44100, 22050)
	buf := make([]float64, 100)
	r.ProcessStreaming(testSignal(300), buf)
	r.Reset()

	fresh := beatkey.NewResampler2to1(44100, 22050)
	bufA := make([]float64, 100)
	bufB := make([]float64, 100)
	nA := r.ProcessStreaming(testSignal(300), bufA)
	nB := fresh.ProcessStreaming(testSignal(300), bufB)
	assert.Equal(t, nA, nB)
	assert.Equal(t, bufA[:nA], bufB[:nB])
}
