package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingRunner(n *int32) Runner {
	return func(context.Context) ([]string, error) {
		atomic.AddInt32(n, 1)
		return []string{"cycle"}, nil
	}
}

func TestNewValidatesJobs(t *testing.T) {
	_, err := New(Config{Jobs: []Job{{Name: "a", Type: "scan.hot", Every: time.Hour, Enabled: true}}}, nil)
	assert.ErrorContains(t, err, "unknown type")

	runners := map[string]Runner{JobRebalance: countingRunner(new(int32))}
	_, err = New(Config{Jobs: []Job{{Name: "a", Type: JobRebalance, Enabled: true}}}, runners)
	assert.ErrorContains(t, err, "every must be positive")

	_, err = New(Config{Jobs: []Job{{Name: "a"}, {Name: "a"}}}, runners)
	assert.ErrorContains(t, err, "duplicate job name")

	// disabled jobs are not checked against runners
	_, err = New(DefaultConfig(), runners)
	assert.NoError(t, err)
}

func TestRunJob(t *testing.T) {
	var n int32
	s, err := New(DefaultConfig(), map[string]Runner{
		JobRebalance: countingRunner(&n),
		JobArchive: func(context.Context) ([]string, error) {
			return nil, errors.New("no trades")
		},
	})
	require.NoError(t, err)

	res, err := s.RunJob(context.Background(), "hourly-rebalance")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"cycle"}, res.Artifacts)
	assert.EqualValues(t, 1, n)

	res, err = s.RunJob(context.Background(), "eod-archive")
	assert.ErrorContains(t, err, "no trades")
	assert.False(t, res.Success)
	assert.Equal(t, "no trades", res.Error)

	_, err = s.RunJob(context.Background(), "missing")
	assert.ErrorContains(t, err, "job not found")

	assert.Len(t, s.History(), 2)
}

func TestCheckAndRunJobsHonoursInterval(t *testing.T) {
	var n int32
	cfg := Config{Jobs: []Job{{Name: "rb", Type: JobRebalance, Every: time.Hour, Enabled: true}}}
	s, err := New(cfg, map[string]Runner{JobRebalance: countingRunner(&n)})
	require.NoError(t, err)

	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	s.next["rb"] = clock

	ctx := context.Background()
	s.checkAndRunJobs(ctx)
	s.checkAndRunJobs(ctx)
	assert.EqualValues(t, 1, n)

	clock = clock.Add(59 * time.Minute)
	s.checkAndRunJobs(ctx)
	assert.EqualValues(t, 1, n)

	clock = clock.Add(time.Minute)
	s.checkAndRunJobs(ctx)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, clock.Add(time.Hour), s.GetStatus().NextRun)
}

func TestStartRunsOnStartAndStops(t *testing.T) {
	ran := make(chan struct{}, 1)
	cfg := Config{Tick: 10 * time.Millisecond, Jobs: []Job{
		{Name: "rb", Type: JobRebalance, Every: time.Hour, Enabled: true, RunOnStart: true},
	}}
	s, err := New(cfg, map[string]Runner{JobRebalance: func(context.Context) ([]string, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil, nil
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Start(ctx) }()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run on start")
	}
	assert.True(t, s.GetStatus().Running)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, s.GetStatus().Running)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tick: 30s
jobs:
  - name: rb
    type: rebalance.run
    every: 2h
    enabled: true
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Tick)
	require.Len(t, cfg.Jobs, 1)
	assert.Equal(t, 2*time.Hour, cfg.Jobs[0].Every)
}
