package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityIntervalHours(t *testing.T) {
	tests := []struct {
		priority Priority
		hours    int
	}{
		{PriorityHigh, 1},
		{PriorityMedium, 24},
		{PriorityLow, 168},
	}

	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			assert.Equal(t, tt.hours, tt.priority.IntervalHours())
			assert.Equal(t, time.Duration(tt.hours)*time.Hour, tt.priority.Interval())
		})
	}
}

func TestNextSyncAt(t *testing.T) {
	base := time.Date(2024, 3, 10, 1, 30, 0, 0, time.UTC)

	for _, p := range Priorities {
		got := NextSyncAt(p, base)
		assert.Equal(t, base.Add(time.Duration(p.IntervalHours())*time.Hour), got, p)
	}
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("low")
	require.NoError(t, err)
	assert.Equal(t, PriorityLow, p)

	_, err = ParsePriority("urgent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPriority))

	_, err = ParsePriority("")
	assert.ErrorIs(t, err, ErrInvalidPriority)
}

func TestFeedScheduleBase(t *testing.T) {
	now := time.Now()
	last := now.Add(-3 * time.Hour)

	never := Feed{}
	assert.True(t, never.NeverSynced())
	assert.Equal(t, now, never.ScheduleBase(now))

	synced := Feed{LastSyncedAt: &last}
	assert.False(t, synced.NeverSynced())
	assert.Equal(t, last, synced.ScheduleBase(now))
}

func TestTally(t *testing.T) {
	ok, failed := Tally([]SyncResult{{Success: true}, {}, {Success: true}})
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)
}
