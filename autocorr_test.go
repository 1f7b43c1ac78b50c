package beatkey_test

import (
	"math"
	"testing"

	"github.com/comfortfood/beatkey"
	"github.com/stretchr/testify/assert"
)

func Test_EstimateBPM_InsufficientDataReturnsZero(t *testing.T) {
	beat := make([]float64, 10)
	downbeat := make([]float64, 10)
	assert.Equal(t, 0.0, beatkey.EstimateBPM(beat, downbeat, true))
}

// A periodic pulse train at N frames per beat should recover a BPM close
// to 60 * FPS / N (FPS = 50) once autocorrelation and octave correction
// are applied.
func Test_EstimateBPM_RecoversPeriodicPulse(t *testing.T) {
	const framesPerBeat = 25 // 120 BPM at 50fps
	numFrames := framesPerBeat * 40
	beat := make([]float64, numFrames)
	downbeat := make([]float64, numFrames)
	for i := 0; i < numFrames; i += framesPerBeat {
		beat[i] = 1.0
	}

	bpm := beatkey.EstimateBPM(beat, downbeat, true)
	assert.InDelta(t, 120.0, bpm, 5.0)
}

func Test_EstimateBPM_OctaveCorrectionRange(t *testing.T) {
	// A very fast pulse (its period is shorter than the shortest lag searched)
	// should still land in the DJ range after correction, not stay implausible.
	const framesPerBeat = 10 // 300 BPM raw, should not stay above the DJ maximum (165) after correction
	numFrames := framesPerBeat * 60
	beat := make([]float64, numFrames)
	downbeat := make([]float64, numFrames)
	for i := 0; i < numFrames; i += framesPerBeat {
		beat[i] = 1.0
	}

	bpm := beatkey.EstimateBPM(beat, downbeat, true)
	assert.False(t, math.IsNaN(bpm))
	assert.GreaterOrEqual(t, bpm, 75.0)
	assert.LessOrEqual(t, bpm, 165.0)
}
