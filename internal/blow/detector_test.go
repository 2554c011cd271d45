package blow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dooshek/candleblow/internal/audio"
	"github.com/dooshek/candleblow/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 2 * time.Second

type fakeSession struct {
	level   atomic.Value // float64 amplitude of a square wave
	done    chan struct{}
	endOnce sync.Once
	mu      sync.Mutex
	err     error
	closes  atomic.Int32
}

func newFakeSession(level float64) *fakeSession {
	s := &fakeSession{done: make(chan struct{})}
	s.level.Store(level)
	return s
}

func (s *fakeSession) setLevel(level float64) { s.level.Store(level) }

func (s *fakeSession) Window(dst []float64) int {
	level := s.level.Load().(float64)
	n := 256
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			dst[i] = level
		} else {
			dst[i] = -level
		}
	}
	return n
}

func (s *fakeSession) Done() <-chan struct{} { return s.done }

func (s *fakeSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSession) end(err error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *fakeSession) Close() error {
	s.closes.Add(1)
	s.end(nil)
	return nil
}

func (s *fakeSession) closed() bool { return s.closes.Load() > 0 }

type fakeSource struct {
	mu       sync.Mutex
	level    float64
	err      error
	gate     chan struct{} // when set, Open blocks until it is closed
	opening  chan struct{}
	sessions []*fakeSession
}

func (f *fakeSource) Open(ctx context.Context) (audio.Session, error) {
	f.mu.Lock()
	gate, opening, err, level := f.gate, f.opening, f.err, f.level
	f.mu.Unlock()

	if opening != nil {
		close(opening)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	s := newFakeSession(level)
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeSource) session(i int) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[i]
}

func (f *fakeSource) opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

type manualTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func (m *manualTicker) C() <-chan time.Time { return m.c }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

type harness struct {
	t       *testing.T
	src     *fakeSource
	det     *Detector
	frames  chan DetectionResult
	blows   atomic.Int32
	mu      sync.Mutex
	tickers []*manualTicker
	errs    chan error
}

func newHarness(t *testing.T, src *fakeSource) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		src:    src,
		frames: make(chan DetectionResult, 1024),
		errs:   make(chan error, 4),
	}
	h.det = NewDetector(src, types.DefaultDetectorConfig(), func() { h.blows.Add(1) })
	h.det.newTicker = func(time.Duration) ticker {
		mt := &manualTicker{c: make(chan time.Time)}
		h.mu.Lock()
		h.tickers = append(h.tickers, mt)
		h.mu.Unlock()
		return mt
	}
	h.det.SetFrameHandler(func(r DetectionResult) { h.frames <- r })
	h.det.SetErrorHandler(func(err error) { h.errs <- err })
	t.Cleanup(h.det.Stop)
	return h
}

func (h *harness) ticker() *manualTicker {
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(h.t, h.tickers)
	return h.tickers[len(h.tickers)-1]
}

// step drives one frame and waits for it to be processed.
func (h *harness) step() DetectionResult {
	h.t.Helper()
	select {
	case h.ticker().c <- time.Now():
	case <-time.After(testTimeout):
		h.t.Fatal("frame loop did not accept tick")
	}
	select {
	case r := <-h.frames:
		return r
	case <-time.After(testTimeout):
		h.t.Fatal("frame was not processed")
	}
	return DetectionResult{}
}

func (h *harness) calibrate() {
	h.t.Helper()
	for i := 0; i < 60; i++ {
		h.step()
	}
	require.True(h.t, h.det.Calibration().Calibrated)
}

func TestDetectorReportsZeroWhileCalibrating(t *testing.T) {
	h := newHarness(t, &fakeSource{level: 0.8})
	require.NoError(t, h.det.Start(context.Background()))

	assert.True(t, h.det.State().IsDetecting)
	for i := 0; i < 60; i++ {
		r := h.step()
		assert.True(t, r.IsDetecting)
		assert.Zero(t, r.Intensity, "frame %d", i)
	}

	cal := h.det.Calibration()
	assert.True(t, cal.Calibrated)
	assert.InDelta(t, 0.8, cal.Baseline, 1e-9)
	assert.Zero(t, h.blows.Load())
}

func TestDetectorFiresBlowsForSustainedBreath(t *testing.T) {
	h := newHarness(t, &fakeSource{level: 0.1})
	require.NoError(t, h.det.Start(context.Background()))
	h.calibrate()

	h.src.session(0).setLevel(0.17)
	var last DetectionResult
	for i := 0; i < 13; i++ {
		last = h.step()
	}

	// onBlow runs after the frame handler on the loop goroutine
	assert.Eventually(t, func() bool { return h.blows.Load() == 2 }, testTimeout, time.Millisecond)
	assert.Greater(t, last.Intensity, 50.0)
	assert.LessOrEqual(t, last.Intensity, 100.0)
	assert.Equal(t, last, h.det.State())

	h.src.session(0).setLevel(0.1)
	prev := last.Intensity
	for i := 0; i < 10; i++ {
		r := h.step()
		assert.Less(t, r.Intensity, prev)
		prev = r.Intensity
	}
}

func TestDetectorStopIsIdempotent(t *testing.T) {
	src := &fakeSource{level: 0.1}
	h := newHarness(t, src)

	h.det.Stop()
	h.det.Stop()
	assert.Zero(t, src.opened())

	require.NoError(t, h.det.Start(context.Background()))
	h.step()
	h.det.Stop()
	h.det.Stop()

	assert.True(t, src.session(0).closed())
	assert.Equal(t, int32(1), src.session(0).closes.Load())
	assert.True(t, h.ticker().stopped.Load())
	assert.False(t, h.det.State().IsDetecting)
}

func TestDetectorStopDuringAcquisition(t *testing.T) {
	src := &fakeSource{level: 0.1, gate: make(chan struct{}), opening: make(chan struct{})}
	h := newHarness(t, src)

	errc := make(chan error, 1)
	go func() { errc <- h.det.Start(context.Background()) }()

	select {
	case <-src.opening:
	case <-time.After(testTimeout):
		t.Fatal("source was never opened")
	}
	h.det.Stop()
	close(src.gate)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(testTimeout):
		t.Fatal("Start did not return")
	}

	assert.True(t, src.session(0).closed(), "late session must be released")
	assert.False(t, h.det.State().IsDetecting)
}

func TestDetectorRestartCalibratesFromScratch(t *testing.T) {
	h := newHarness(t, &fakeSource{level: 0.1})
	require.NoError(t, h.det.Start(context.Background()))
	h.calibrate()
	h.src.session(0).setLevel(0.17)
	h.step()
	h.step()

	h.det.Stop()
	assert.Equal(t, CalibrationState{}, h.det.Calibration())

	require.NoError(t, h.det.Start(context.Background()))
	assert.Equal(t, CalibrationState{}, h.det.Calibration())
	assert.Equal(t, IntensityState{}, h.det.Intensity())

	r := h.step()
	assert.Zero(t, r.Intensity)
	assert.Equal(t, 1, h.det.Calibration().SamplesCollected)
}

func TestDetectorStartReplacesActiveSession(t *testing.T) {
	src := &fakeSource{level: 0.1}
	h := newHarness(t, src)

	require.NoError(t, h.det.Start(context.Background()))
	first := h.ticker()
	require.NoError(t, h.det.Start(context.Background()))

	assert.Equal(t, 2, src.opened())
	assert.True(t, src.session(0).closed())
	assert.False(t, src.session(1).closed())
	assert.True(t, first.stopped.Load())
	h.step()
}

func TestDetectorReportsDeviceError(t *testing.T) {
	devErr := &audio.DeviceError{Kind: audio.PermissionDenied, Err: errors.New("permission denied")}
	h := newHarness(t, &fakeSource{err: devErr})

	err := h.det.Start(context.Background())
	require.Error(t, err)

	var de *audio.DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, audio.PermissionDenied, de.Kind)
	assert.True(t, audio.IsDeviceError(h.det.Err()))
	assert.False(t, h.det.State().IsDetecting)

	h.mu.Lock()
	assert.Empty(t, h.tickers, "no frame loop without a session")
	h.mu.Unlock()
}

func TestDetectorTearsDownOnStreamFailure(t *testing.T) {
	h := newHarness(t, &fakeSource{level: 0.1})
	require.NoError(t, h.det.Start(context.Background()))
	h.calibrate()

	sess := h.src.session(0)
	sess.end(audio.ErrStreamEnded)

	select {
	case err := <-h.errs:
		assert.ErrorIs(t, err, audio.ErrStreamEnded)
	case <-time.After(testTimeout):
		t.Fatal("error handler was not called")
	}

	assert.True(t, sess.closed())
	assert.False(t, h.det.State().IsDetecting)
	assert.Equal(t, CalibrationState{}, h.det.Calibration())
	assert.ErrorIs(t, h.det.Err(), audio.ErrStreamEnded)

	require.NoError(t, h.det.Start(context.Background()))
	assert.Nil(t, h.det.Err())
	assert.Equal(t, CalibrationState{}, h.det.Calibration())
}

func TestDetectorStopFromBlowCallback(t *testing.T) {
	src := &fakeSource{level: 0.1}
	h := newHarness(t, src)
	stopped := make(chan struct{})
	h.det.onBlow = func() {
		h.det.Stop()
		close(stopped)
	}

	require.NoError(t, h.det.Start(context.Background()))
	h.calibrate()
	src.session(0).setLevel(0.17)

	for i := 0; i < 8; i++ {
		h.step()
	}

	select {
	case <-stopped:
	case <-time.After(testTimeout):
		t.Fatal("Stop from callback deadlocked")
	}
	assert.True(t, src.session(0).closed())
	assert.False(t, h.det.State().IsDetecting)
}

// loudFrames drives n frames at a level that saturates the intensity.
func (h *harness) loudFrames(n int) {
	h.t.Helper()
	h.src.session(0).setLevel(0.2)
	for i := 0; i < n; i++ {
		h.step()
	}
	require.Zero(h.t, h.blows.Load())
}

func TestDetectorStopWaitsForInFlightCallback(t *testing.T) {
	h := newHarness(t, &fakeSource{level: 0.1})
	require.NoError(t, h.det.Start(context.Background()))
	h.calibrate()
	// The 8th loud frame fires a blow
	h.loudFrames(7)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.det.SetFrameHandler(func(DetectionResult) {
		close(entered)
		<-release
	})

	h.ticker().c <- time.Now()
	select {
	case <-entered:
	case <-time.After(testTimeout):
		t.Fatal("frame handler was not called")
	}

	var blowsAtStop atomic.Int32
	stopped := make(chan struct{})
	go func() {
		h.det.Stop()
		blowsAtStop.Store(h.blows.Load())
		close(stopped)
	}()

	assert.Never(t, func() bool {
		select {
		case <-stopped:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, time.Millisecond, "Stop returned while the frame handler was running")

	close(release)
	select {
	case <-stopped:
	case <-time.After(testTimeout):
		t.Fatal("Stop did not return after the frame handler finished")
	}

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, h.blows.Load(), "no blow may be reported once Stop was requested")
	assert.Equal(t, blowsAtStop.Load(), h.blows.Load())
	assert.True(t, h.src.session(0).closed())
	assert.True(t, h.ticker().stopped.Load())
}

func TestDetectorStopFromFrameCallbackSkipsBlow(t *testing.T) {
	h := newHarness(t, &fakeSource{level: 0.1})
	require.NoError(t, h.det.Start(context.Background()))
	h.calibrate()
	h.loudFrames(7)

	stopped := make(chan struct{})
	h.det.SetFrameHandler(func(DetectionResult) {
		h.det.Stop()
		close(stopped)
	})

	h.ticker().c <- time.Now()
	select {
	case <-stopped:
	case <-time.After(testTimeout):
		t.Fatal("Stop from frame handler deadlocked")
	}

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, h.blows.Load())
	assert.True(t, h.src.session(0).closed())
	assert.False(t, h.det.State().IsDetecting)
}

func TestGoroutineIDDistinguishesGoroutines(t *testing.T) {
	own := goroutineID()
	require.NotZero(t, own)
	assert.Equal(t, own, goroutineID())

	other := make(chan uint64)
	go func() { other <- goroutineID() }()
	assert.NotEqual(t, own, <-other)
}

func TestDetectionResultPercent(t *testing.T) {
	assert.Equal(t, 51, DetectionResult{Intensity: 50.6}.Percent())
	assert.Equal(t, 0, DetectionResult{}.Percent())
}
