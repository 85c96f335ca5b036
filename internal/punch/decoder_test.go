package punch

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeWorkedExample(t *testing.T) {
	raw := []byte("1\t2025-01-06 08:00:00\t0\t1\t0\t0\n1\t2025-01-06 17:00:00\t1\t1\t0\t0\n")

	punches, errs := NewDecoder(nil).Decode(raw)
	require.Empty(t, errs)
	require.Len(t, punches, 2)

	assert.Equal(t, Punch{
		DeviceUserID: "1",
		Timestamp:    time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC),
		Direction:    CheckIn,
		VerifyMethod: "fingerprint",
		WorkCode:     "0",
	}, punches[0])
	assert.Equal(t, CheckOut, punches[1].Direction)
}

func TestDecodeDirection(t *testing.T) {
	tests := []struct {
		status string
		want   Direction
	}{
		{"0", CheckIn},
		{"1", CheckOut},
		{"4", CheckOut},
		{"5", CheckOut},
		{"x", CheckOut},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			punches, _ := NewDecoder(nil).Decode([]byte("5\t2025-01-06 08:00:00\t" + tt.status))
			require.Len(t, punches, 1)
			assert.Equal(t, tt.want, punches[0].Direction)
		})
	}
}

func TestVerifyMethod(t *testing.T) {
	tests := map[int]string{
		0:  "password",
		1:  "fingerprint",
		2:  "card",
		3:  "password+fingerprint",
		4:  "password+card",
		5:  "fingerprint+card",
		6:  "password+fingerprint+card",
		7:  "face",
		8:  "unknown",
		15: "unknown",
		-1: "unknown",
	}
	for code, want := range tests {
		if got := VerifyMethod(code); got != want {
			t.Errorf("VerifyMethod(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestDecodeSkipsShortLines(t *testing.T) {
	raw := []byte("\n1\n1\t2025-01-06 08:00:00\n2\t2025-01-06 09:00:00\t0\n")

	punches, errs := NewDecoder(nil).Decode(raw)
	assert.Empty(t, errs, "short lines are dropped without errors")
	require.Len(t, punches, 1)
	assert.Equal(t, "2", punches[0].DeviceUserID)
	assert.Equal(t, "unknown", punches[0].VerifyMethod)
}

func TestDecodeBadLinesContinue(t *testing.T) {
	raw := []byte("1\tyesterday\t0\t1\n\t2025-01-06 08:00:00\t0\n3\t2025-01-06 08:00:00\t0\t2\r\n")

	punches, errs := NewDecoder(nil).Decode(raw)
	require.Len(t, punches, 1)
	assert.Equal(t, "3", punches[0].DeviceUserID)
	assert.Equal(t, "card", punches[0].VerifyMethod)

	require.Len(t, errs, 2)
	assert.Equal(t, 1, errs[0].Line)
	assert.Equal(t, 2, errs[1].Line)

	var derr *DecodeError
	assert.True(t, errors.As(error(errs[0]), &derr))
}

func TestDecodeOversizedLineDoesNotTruncate(t *testing.T) {
	junk := strings.Repeat("x", 70000)
	raw := []byte("1\t2025-01-06 08:00:00\t0\t1\n" +
		junk + "\n" +
		"7\t" + junk + "\t0\n" +
		"1\t2025-01-06 17:00:00\t1\t1\n")

	punches, errs := NewDecoder(nil).Decode(raw)
	require.Len(t, punches, 2)
	assert.Equal(t, CheckIn, punches[0].Direction)
	assert.Equal(t, CheckOut, punches[1].Direction)

	require.Len(t, errs, 1)
	assert.Equal(t, 3, errs[0].Line)
	assert.Less(t, len(errs[0].Error()), 300, "error text is capped")
}

func TestDecodeInDeviceTimezone(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	punches, errs := NewDecoder(berlin).Decode([]byte("1\t2025-01-06 08:00:00\t0"))
	require.Empty(t, errs)
	require.Len(t, punches, 1)

	assert.Equal(t, time.Date(2025, 1, 6, 7, 0, 0, 0, time.UTC), punches[0].Timestamp)
	assert.Equal(t, time.UTC, punches[0].Timestamp.Location())
}

func TestFilterRange(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 1, d, 8, 0, 0, 0, time.UTC) }
	punches := []Punch{{Timestamp: day(1)}, {Timestamp: day(2)}, {Timestamp: day(3)}, {Timestamp: day(4)}}

	start, end := day(2), day(3)
	got := FilterRange(punches, &start, &end)
	require.Len(t, got, 2)
	assert.Equal(t, day(2), got[0].Timestamp)
	assert.Equal(t, day(3), got[1].Timestamp)

	assert.Len(t, FilterRange(punches, &start, nil), 3)
	assert.Len(t, FilterRange(punches, nil, &start), 2)
	assert.Len(t, FilterRange(punches, nil, nil), 4)
	assert.Len(t, punches, 4, "input is not modified")
}
