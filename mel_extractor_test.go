package beatkey_test

import (
	"testing"

	"github.com/comfortfood/beatkey"
	"github.com/stretchr/testify/assert"
)

func Test_MelExtractor_NumBandsIs136(t *testing.T) {
	e := beatkey.NewMelExtractor()
	assert.Equal(t, 136, e.NumBands())
}

func Test_MelExtractor_FirstFrameDiffIsZero(t *testing.T) {
	e := beatkey.NewMelExtractor()
	frame := make([]float64, beatkey.MelWinLength)
	for i := range frame {
		frame[i] = 0.1
	}

	out := make([]float64, beatkey.MelFeatureDim)
	e.ProcessFrame(frame, out)

	nBands := e.NumBands()
	for i := nBands; i < 2*nBands; i++ {
		assert.Equal(t, 0.0, out[i], "diff band %d should be zero on the first frame", i-nBands)
	}
}

func Test_StreamingMelExtractor_ProducesFramesAtHopRate(t *testing.T) {
	s := beatkey.NewStreamingMelExtractor()
	samples := make([]float64, beatkey.MelHopLength*5)
	features := make([]float64, 10*beatkey.MelFeatureDim)

	n := s.Push(samples, features, 10)
	assert.GreaterOrEqual(t, n, 4)
}

func Test_StreamingMelExtractor_StopsAtMaxFrames(t *testing.T) {
	s := beatkey.NewStreamingMelExtractor()
	samples := make([]float64, beatkey.MelHopLength*20)
	features := make([]float64, 3*beatkey.MelFeatureDim)

	n := s.Push(samples, features, 3)
	assert.Equal(t, 3, n)
}
