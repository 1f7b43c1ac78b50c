package beatkey_test

import (
	"testing"

	"github.com/comfortfood/beatkey"
	"github.com/stretchr/testify/assert"
)

func Test_CqtExtractor_BinCounts(t *testing.T) {
	e := beatkey.NewCqtExtractor()
	assert.Len(t, e.CenterFrequencies(), beatkey.CqtNumBins)
	assert.Len(t, e.FilterLengths(), beatkey.CqtNumBins)
	assert.Greater(t, e.MaxFilterLength(), 0)
}

func Test_CqtExtractor_LowestBinHasLongestFilter(t *testing.T) {
	e := beatkey.NewCqtExtractor()
	lengths := e.FilterLengths()
	for i := 1; i < len(lengths); i++ {
		assert.LessOrEqual(t, lengths[i], lengths[0])
	}
}

func Test_CqtExtractor_SilenceProducesZeroBins(t *testing.T) {
	e := beatkey.NewCqtExtractor()
	audio := make([]float64, e.MaxFilterLength())
	out := make([]float64, beatkey.CqtNumBins)
	e.ProcessFrame(audio, out)
	for _, v := range out {
		assert.Equal(t, 0.0, v)
	}
}

// The streaming CQT extractor must keep advancing its internal frame
// counter for every hop boundary crossed even when the caller's output
// buffer runs out, so key-inference scheduling stays correct across calls.
func Test_StreamingCqtExtractor_FrameCountAdvancesPastCapacity(t *testing.T) {
	s := beatkey.NewStreamingCqtExtractor()
	samples := make([]float64, beatkey.CqtHopLength*10)
	out := make([]float64, 2*beatkey.CqtNumBins)

	produced := s.Push(samples, out, 2)
	assert.Equal(t, 2, produced)
	assert.Greater(t, s.FrameCount(), 2)
}
