package main

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dooshek/candleblow/internal/audio"
	"github.com/dooshek/candleblow/internal/blow"
	"github.com/dooshek/candleblow/internal/notification"
	"github.com/dooshek/candleblow/internal/stats"
	"github.com/dooshek/candleblow/internal/types"
	"github.com/dooshek/candleblow/pkg/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// breathSession is quiet for the first quiet windows, then loud.
type breathSession struct {
	quiet  int
	calls  atomic.Int64
	done   chan struct{}
	closed sync.Once
}

func (s *breathSession) Window(dst []float64) int {
	level := 0.1
	if s.calls.Add(1) > int64(s.quiet) {
		level = 0.17
	}
	for i := 0; i < 64; i++ {
		dst[i] = level
	}
	return 64
}

func (s *breathSession) Done() <-chan struct{} { return s.done }
func (s *breathSession) Err() error            { return nil }
func (s *breathSession) Close() error {
	s.closed.Do(func() { close(s.done) })
	return nil
}

type sourceFunc func(ctx context.Context) (audio.Session, error)

func (f sourceFunc) Open(ctx context.Context) (audio.Session, error) { return f(ctx) }

type recordingPresenter struct {
	mu        sync.Mutex
	remaining []int
	errs      []error
	allBlown  int
	frames    int
}

func (r *recordingPresenter) BlowDetected(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = append(r.remaining, n)
}

func (r *recordingPresenter) Frame(blow.DetectionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
}

func (r *recordingPresenter) DetectionError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingPresenter) AllCandlesBlown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allBlown++
}

// musicNotifier records the song's lifetime on top of a silent notifier.
type musicNotifier struct {
	notification.Notifier
	mu     sync.Mutex
	events []string
}

func (m *musicNotifier) StartMusic() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "start")
	return nil
}

func (m *musicNotifier) StopMusic() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "stop")
}

func fastDetector() types.DetectorConfig {
	cfg := types.DefaultDetectorConfig()
	cfg.FrameRate = 1000
	return cfg
}

func runWithTimeout(t *testing.T, p *party) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := p.run(ctx)
	require.NoError(t, ctx.Err(), "party did not finish on its own")
	return err
}

func TestPartyBlowsOutEveryCandle(t *testing.T) {
	sess := &breathSession{quiet: 60, done: make(chan struct{})}
	statsPath := filepath.Join(t.TempDir(), "stats.json")
	sm := stats.NewStatsManagerAt(statsPath)
	music := &musicNotifier{Notifier: notification.NewSilent()}

	p := newParty(partyOptions{
		source:     sourceFunc(func(context.Context) (audio.Session, error) { return sess, nil }),
		sourceName: "microphone",
		detector:   fastDetector(),
		cake:       types.CakeConfig{Candles: 3, AllBlownDelay: 5 * time.Millisecond},
		name:       "Ada",
		notifier:   music,
		stats:      sm,
	})
	rec := &recordingPresenter{}
	p.setPresenter(rec)

	require.NoError(t, runWithTimeout(t, p))

	assert.Zero(t, p.cake.Remaining())
	rec.mu.Lock()
	assert.Equal(t, []int{2, 1, 0}, rec.remaining)
	assert.Equal(t, 1, rec.allBlown)
	assert.Empty(t, rec.errs)
	assert.Greater(t, rec.frames, 60)
	rec.mu.Unlock()

	assert.False(t, p.detector.State().IsDetecting)
	select {
	case <-sess.done:
	default:
		t.Fatal("session must be released once the cake is done")
	}

	mic := stats.NewStatsManagerAt(statsPath).GetStats().Sources["microphone"]
	require.NotNil(t, mic)
	assert.Equal(t, 1, mic.Sessions)
	assert.Equal(t, 3, mic.Blows)
	assert.InDelta(t, 0.1, mic.LastBaseline, 1e-9)

	music.mu.Lock()
	assert.Equal(t, []string{"start", "stop"}, music.events, "the song plays for the whole party")
	music.mu.Unlock()
}

func TestPartyEndsWithReplay(t *testing.T) {
	pcm := make([]int16, 400)
	path := filepath.Join(t.TempDir(), "quiet.wav")
	require.NoError(t, wav.WriteFile(path, audio.EncodePCM16(pcm), 1, 8000))

	statsPath := filepath.Join(t.TempDir(), "stats.json")
	p := newParty(partyOptions{
		source:     audio.NewFileSource(path, types.CaptureConfig{}),
		sourceName: "quiet.wav",
		replay:     true,
		detector:   types.DefaultDetectorConfig(),
		cake:       types.CakeConfig{Candles: 5, AllBlownDelay: time.Millisecond},
		stats:      stats.NewStatsManagerAt(statsPath),
	})
	rec := &recordingPresenter{}
	p.setPresenter(rec)

	require.NoError(t, runWithTimeout(t, p))

	assert.Equal(t, 5, p.cake.Remaining())
	rec.mu.Lock()
	assert.Empty(t, rec.errs, "end of a replay is not an error")
	rec.mu.Unlock()
	assert.Equal(t, 1, stats.NewStatsManagerAt(statsPath).GetStats().Sources["quiet.wav"].Sessions)
}

func TestPartyReportsDeviceError(t *testing.T) {
	devErr := &audio.DeviceError{Kind: audio.NoDevice}
	p := newParty(partyOptions{
		source:    sourceFunc(func(context.Context) (audio.Session, error) { return nil, devErr }),
		detector:  types.DefaultDetectorConfig(),
		cake:      types.CakeConfig{Candles: 1, AllBlownDelay: time.Millisecond},
		manualKey: types.KeyBinding{Key: "no-such-key"},
	})
	rec := &recordingPresenter{}
	p.setPresenter(rec)

	err := runWithTimeout(t, p)
	assert.ErrorContains(t, err, "failed to create manual blow key")

	rec.mu.Lock()
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], devErr)
	rec.mu.Unlock()
}

func TestManualBlowUsesCake(t *testing.T) {
	p := newParty(partyOptions{
		source: sourceFunc(func(context.Context) (audio.Session, error) { return nil, nil }),
		cake:   types.CakeConfig{Candles: 2, AllBlownDelay: time.Hour},
	})
	rec := &recordingPresenter{}
	p.setPresenter(rec)
	defer p.cake.Stop()

	p.handleBlow()
	p.handleBlow()
	p.handleBlow()

	assert.Equal(t, []int{1, 0}, rec.remaining)
	assert.Equal(t, 2, p.blows)
}
