package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"groupchat/pkg/timeutil"
)

func TestSlowTracesAreReported(t *testing.T) {
	clk := timeutil.NewManual(time.Unix(0, 0))
	defer timeutil.Set(clk)()

	var got []*Trace
	var slowFlags []bool
	tel := New(0, 100*time.Millisecond, func(tr *Trace, slow bool) {
		got = append(got, tr)
		slowFlags = append(slowFlags, slow)
	})

	fast := tel.Track("fast")
	clk.Advance(10 * time.Millisecond)
	fast.Finish()
	require.Empty(t, got)

	slow := tel.Track("slow")
	clk.Advance(60 * time.Millisecond)
	slow.Mark("store")
	clk.Advance(60 * time.Millisecond)
	slow.Finish()
	slow.Finish()

	require.Len(t, got, 1)
	require.True(t, slowFlags[0])
	require.Equal(t, "store", got[0].Steps[0].Name)
	require.InDelta(t, 60.0, got[0].Steps[0].Duration, 0.01)
	require.Equal(t, "unmarked", got[0].Steps[1].Name)
	require.InDelta(t, 120.0, got[0].TotalMS, 0.01)
}

func TestSampling(t *testing.T) {
	var n int
	tel := New(0.5, 0, func(*Trace, bool) { n++ })
	vals := []float64{0.1, 0.9, 0.4}
	i := 0
	tel.sample = func() float64 { v := vals[i]; i++; return v }

	for range vals {
		tel.Track("op").Finish()
	}
	require.Equal(t, 2, n)
}

func TestTrackWithoutInitIsInert(t *testing.T) {
	tr := Track("noop")
	tr.Mark("a")
	tr.Finish()
	require.Nil(t, tr.tel)
}
