package beatkey_test

import (
	"testing"

	"github.com/comfortfood/beatkey"
	"github.com/stretchr/testify/assert"
)

func Test_Engine_StartsUnloaded(t *testing.T) {
	e := beatkey.NewEngine()
	assert.False(t, e.BeatReady())
	assert.False(t, e.KeyReady())
	assert.Equal(t, 0.0, e.CurrentBPM())
	assert.Equal(t, 0, e.BPMFrameCount())
	assert.False(t, e.CurrentKey().Valid)
}

func Test_Engine_ProcessAudioWithoutModelsProducesNothing(t *testing.T) {
	e := beatkey.NewEngine()
	samples := make([]float32, 4410)
	n := e.ProcessAudio(samples, nil)
	assert.Equal(t, 0, n)
}

func Test_Engine_ProcessAudioForBPMWithoutModelProducesNothing(t *testing.T) {
	e := beatkey.NewEngine()
	samples := make([]float32, 4410)
	out := make([]beatkey.FrameResult, 4)
	n := e.ProcessAudioForBPM(samples, out)
	assert.Equal(t, 0, n)
}

func Test_Engine_ResetClearsCounters(t *testing.T) {
	e := beatkey.NewEngine()
	e.Reset()
	assert.Equal(t, 0, e.BPMFrameCount())
	assert.Equal(t, 0, e.KeyFrameCount())
	assert.Equal(t, 0.0, e.CurrentBPM())
}

func Test_Engine_WarmUpBeforeLoadReturnsNotReady(t *testing.T) {
	e := beatkey.NewEngine()
	err := e.WarmUpBeat()
	assert.Error(t, err)
	assert.IsType(t, &beatkey.ErrNotReady{}, err)

	err = e.WarmUpKey()
	assert.Error(t, err)
	assert.IsType(t, &beatkey.ErrNotReady{}, err)
}
