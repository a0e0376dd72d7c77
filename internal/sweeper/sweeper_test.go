package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"groupchat/pkg/config"
	"groupchat/pkg/timeutil"
)

type fakePurger struct {
	mu    sync.Mutex
	calls []time.Time
	n     int
	err   error
}

func (f *fakePurger) SweepExpiredMutes(ctx context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, now)
	return f.n, f.err
}

func TestNewRejectsBadCron(t *testing.T) {
	_, err := New(config.SweeperConfig{Enabled: true, Cron: "not a cron"}, &fakePurger{}, nil)
	require.Error(t, err)
}

func TestRunOncePassesClockTime(t *testing.T) {
	clk := timeutil.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	p := &fakePurger{n: 3}
	s, err := New(config.SweeperConfig{Enabled: true, Cron: "*/5 * * * *"}, p, clk)
	require.NoError(t, err)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []time.Time{clk.Now()}, p.calls)
	require.Equal(t, 1, s.Runs())

	p.err = errors.New("disk gone")
	_, err = s.RunOnce(context.Background())
	require.ErrorContains(t, err, "disk gone")
	require.Equal(t, 1, s.Runs())
}

func TestRunJobSkipsWhileRunning(t *testing.T) {
	p := &fakePurger{}
	s, err := New(config.SweeperConfig{Enabled: true, Cron: "* * * * *"}, p, nil)
	require.NoError(t, err)

	s.running = true
	s.runJob(context.Background())
	require.Empty(t, p.calls)

	s.running = false
	s.runJob(context.Background())
	require.Len(t, p.calls, 1)
}

func TestStartDisabled(t *testing.T) {
	s, cancel, err := Start(context.Background(), config.SweeperConfig{Enabled: false}, &fakePurger{})
	require.NoError(t, err)
	require.Nil(t, s)
	cancel()
}
