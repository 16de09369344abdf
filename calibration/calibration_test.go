package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lie-detector/person"
)

func TestPhaseAtDefaultSchedule(t *testing.T) {
	t.Parallel()

	s := DefaultSchedule()
	cases := []struct {
		frame int
		want  Phase
	}{
		{1, PhaseAveraging},
		{24, PhaseAveraging},
		{25, PhaseThresholds},
		{27, PhaseThresholds},
		{28, PhaseBaselineCounting},
		{299, PhaseBaselineCounting},
		{300, PhaseFreeze},
		{301, PhaseDetecting},
		{5000, PhaseDetecting},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, s.PhaseAt(tc.frame), "frame %d", tc.frame)
	}
}

func TestCollectsCheekColor(t *testing.T) {
	t.Parallel()

	s := DefaultSchedule()
	assert.True(t, s.CollectsCheekColor(1))
	assert.True(t, s.CollectsCheekColor(26))
	assert.True(t, s.CollectsCheekColor(299))
	assert.False(t, s.CollectsCheekColor(300))
	assert.False(t, s.CollectsCheekColor(301))
}

func TestThresholds(t *testing.T) {
	t.Parallel()

	blink, lips := DefaultSchedule().Thresholds(person.Baseline{EyeRatio: 0.3, LipsRatio: 0.5})
	assert.InDelta(t, 0.21, blink.Threshold, 1e-12)
	assert.Equal(t, 1, blink.MinRunLength)
	assert.InDelta(t, 0.4, lips.Threshold, 1e-12)
	assert.Equal(t, 4, lips.MinRunLength)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultSchedule().Validate())

	bad := DefaultSchedule()
	bad.BaselineFrame = 27
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSchedule)

	bad = DefaultSchedule()
	bad.LipsRunLength = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSchedule)
}

func TestCalibratorNext(t *testing.T) {
	t.Parallel()

	s := Schedule{AveragingFrames: 2, ThresholdFrames: 1, BaselineFrame: 5, BlinkFactor: 1, BlinkRunLength: 1, LipsFactor: 1, LipsRunLength: 1}
	c := New(s)

	var phases []Phase
	for i := 0; i < 6; i++ {
		n, p := c.Next()
		assert.Equal(t, i+1, n)
		phases = append(phases, p)
	}

	assert.Equal(t, []Phase{
		PhaseAveraging, PhaseAveraging, PhaseThresholds,
		PhaseBaselineCounting, PhaseFreeze, PhaseDetecting,
	}, phases)
	assert.True(t, c.Calibrated())
	assert.Equal(t, "freeze", PhaseFreeze.String())
}
