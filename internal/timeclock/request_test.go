package timeclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsRange(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	t.Run("nil options", func(t *testing.T) {
		var o *Options
		start, end, err := o.Range(time.UTC)
		require.NoError(t, err)
		assert.Nil(t, start)
		assert.Nil(t, end)
	})

	t.Run("dates cover whole days in device time", func(t *testing.T) {
		o := &Options{StartDate: "2025-01-06", EndDate: "2025-01-06"}
		start, end, err := o.Range(berlin)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 1, 5, 23, 0, 0, 0, time.UTC), *start)
		assert.Equal(t, time.Date(2025, 1, 6, 22, 59, 59, 999999999, time.UTC), *end)
	})

	t.Run("timestamps are taken as is", func(t *testing.T) {
		o := &Options{EndDate: "2025-01-06T12:00:00Z"}
		start, end, err := o.Range(berlin)
		require.NoError(t, err)
		assert.Nil(t, start)
		assert.Equal(t, time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC), *end)
	})

	t.Run("inverted", func(t *testing.T) {
		o := &Options{StartDate: "2025-01-07", EndDate: "2025-01-06"}
		_, _, err := o.Range(time.UTC)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("garbage", func(t *testing.T) {
		o := &Options{StartDate: "06/01/2025"}
		_, _, err := o.Range(time.UTC)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestRunStatus(t *testing.T) {
	assert.Equal(t, "completed", string(runStatus(0, 0)))
	assert.Equal(t, "completed", string(runStatus(1, 9)))
	assert.Equal(t, "failed", string(runStatus(0, 1)))
}
