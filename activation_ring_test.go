package beatkey_test

import (
	"testing"

	"github.com/comfortfood/beatkey"
	"github.com/stretchr/testify/assert"
)

func Test_ActivationRing_BelowMinimumHasNoBPM(t *testing.T) {
	r := beatkey.NewActivationRing(beatkey.ActivationRingDefaultCapacity)
	for i := 0; i < beatkey.ActivationRingMinFramesForBPM-1; i++ {
		r.Push(0, 0)
	}
	assert.Equal(t, 0.0, r.CachedBPM())
}

func Test_ActivationRing_SizeCapsAtCapacity(t *testing.T) {
	r := beatkey.NewActivationRing(16)
	for i := 0; i < 40; i++ {
		r.Push(float64(i), 0)
	}
	assert.Equal(t, 16, r.Size())
}

func Test_ActivationRing_ClearResetsState(t *testing.T) {
	r := beatkey.NewActivationRing(16)
	for i := 0; i < 20; i++ {
		r.Push(1, 0)
	}
	r.Clear()
	assert.Equal(t, 0, r.Size())
	assert.Equal(t, 0.0, r.CachedBPM())
}

func Test_ActivationRing_ChronologicalOrderSurvivesWraparound(t *testing.T) {
	r := beatkey.NewActivationRing(4)
	// Push 6 values into a capacity-4 ring: [3,4,5,6] should remain, in order.
	for i := 1; i <= 6; i++ {
		r.Push(float64(i), 0)
	}
	beat, _ := r.Snapshot()
	assert.Equal(t, []float64{3, 4, 5, 6}, beat)
}
