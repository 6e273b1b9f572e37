package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFilterBarsInclusiveBounds(t *testing.T) {
	at := func(h int) time.Time {
		return time.Date(2026, 8, 1, h, 0, 0, 0, time.UTC)
	}
	bars := []Bar{
		{Time: at(0)}, {Time: at(1)}, {Time: at(2)}, {Time: at(3)}, {Time: at(4)},
	}

	got := FilterBars(bars, at(1), at(3))
	require.Len(t, got, 3)
	require.Equal(t, at(1), got[0].Time)
	require.Equal(t, at(3), got[2].Time)
}

func TestFilterBarsEmptyWindow(t *testing.T) {
	at := func(h int) time.Time {
		return time.Date(2026, 8, 1, h, 0, 0, 0, time.UTC)
	}
	bars := []Bar{{Time: at(0)}, {Time: at(5)}}

	got := FilterBars(bars, at(1), at(4))
	require.Empty(t, got)
	require.NotNil(t, got)
}
