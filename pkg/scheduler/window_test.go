package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medops-br/triagebot/pkg/config"
)

func bahiaConfig(t *testing.T) config.SummaryConfig {
	t.Helper()
	loc, err := time.LoadLocation("America/Bahia")
	require.NoError(t, err)
	return config.SummaryConfig{
		Timezone:    "America/Bahia",
		Location:    loc,
		MorningHour: 7,
		EveningHour: 19,
	}
}

func TestPreviousWindowAtEveningSlot(t *testing.T) {
	// 22:00 UTC is exactly 19:00 in Bahia (UTC-3): the evening slot
	// itself is eligible.
	now := time.Date(2026, 2, 16, 22, 0, 0, 0, time.UTC)
	w := PreviousWindow(now, bahiaConfig(t))

	assert.Equal(t, time.Date(2026, 2, 16, 10, 0, 0, 0, time.UTC), w.StartUTC)
	assert.Equal(t, time.Date(2026, 2, 16, 22, 0, 0, 0, time.UTC), w.EndUTC)
	assert.Equal(t, 7, w.StartLocal.Hour())
	assert.Equal(t, 19, w.EndLocal.Hour())
}

func TestPreviousWindowBetweenSlots(t *testing.T) {
	// 15:00 local is after the morning slot but before the evening one.
	now := time.Date(2026, 2, 16, 18, 0, 0, 0, time.UTC)
	w := PreviousWindow(now, bahiaConfig(t))

	assert.Equal(t, time.Date(2026, 2, 16, 10, 0, 0, 0, time.UTC), w.EndUTC)
	assert.Equal(t, time.Date(2026, 2, 15, 22, 0, 0, 0, time.UTC), w.StartUTC)
}

func TestPreviousWindowBeforeMorningSlot(t *testing.T) {
	// 05:00 local falls back to yesterday's evening slot.
	now := time.Date(2026, 2, 16, 8, 0, 0, 0, time.UTC)
	w := PreviousWindow(now, bahiaConfig(t))

	assert.Equal(t, time.Date(2026, 2, 15, 22, 0, 0, 0, time.UTC), w.EndUTC)
	assert.Equal(t, time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC), w.StartUTC)
}

func TestPreviousWindowSpansTwelveHours(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		now := time.Date(2026, 2, 16, hour, 0, 0, 0, time.UTC)
		w := PreviousWindow(now, bahiaConfig(t))
		assert.Equal(t, 12*time.Hour, w.EndUTC.Sub(w.StartUTC), "hour %d", hour)
		assert.False(t, w.EndLocal.After(now.In(w.EndLocal.Location())), "hour %d: end not in the future", hour)
	}
}
