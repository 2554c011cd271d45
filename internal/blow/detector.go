package blow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dooshek/candleblow/internal/audio"
	"github.com/dooshek/candleblow/internal/logger"
	"github.com/dooshek/candleblow/internal/types"
	"github.com/rs/zerolog"
)

// Upper bound on samples pulled from a session per frame
const maxWindowSamples = 16384

// ErrStopped is returned by Start when Stop was called while the input was
// still being acquired.
var ErrStopped = errors.New("detector stopped before input was acquired")

// DetectionResult is the read-only view handed to the UI.
type DetectionResult struct {
	IsDetecting bool
	Intensity   float64 // smoothed, 0-100
	Calibrated  bool
	Baseline    float64
}

// Percent returns the intensity rounded for display.
func (r DetectionResult) Percent() int {
	return int(math.Round(r.Intensity))
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	*time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.Ticker.C
}

func newTimeTicker(d time.Duration) ticker {
	return timeTicker{time.NewTicker(d)}
}

// Detector listens to an audio source and reports blows. At most one input
// session is live at a time; every Start begins with a fresh calibration.
//
// The analysis loop runs on a single goroutine at the configured frame rate.
// Stop cancels it and waits for it to exit before releasing the input, so
// no callback starts after Stop returns and an in-flight callback finishes
// first. Callbacks run on the loop goroutine and may call Stop themselves;
// that call returns without waiting and the loop exits once the callback
// returns.
type Detector struct {
	source    audio.Source
	cfg       types.DetectorConfig
	newTicker func(time.Duration) ticker
	log       zerolog.Logger

	mu          sync.Mutex
	onBlow      func()
	onFrame     func(DetectionResult)
	onError     func(error)
	generation  uint64
	session     audio.Session
	cancel      context.CancelFunc
	done        chan struct{}
	pipeline    *Pipeline
	result      DetectionResult
	loopID      uint64 // goroutine running the current generation's loop
	lastErr     error
}

// NewDetector creates a detector that calls onBlow for every detected blow.
func NewDetector(source audio.Source, cfg types.DetectorConfig, onBlow func()) *Detector {
	return &Detector{
		source:    source,
		cfg:       cfg.WithDefaults(),
		onBlow:    onBlow,
		newTicker: newTimeTicker,
		log:       logger.With("blow"),
	}
}

// SetFrameHandler registers a callback invoked after every analysis frame.
func (d *Detector) SetFrameHandler(fn func(DetectionResult)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onFrame = fn
}

// SetErrorHandler registers a callback for input failures after Start succeeded.
func (d *Detector) SetErrorHandler(fn func(error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onError = fn
}

// Start acquires the audio input and begins analysis. Any running session
// is torn down first. A failure to acquire the input is returned wrapping
// the source's *audio.DeviceError and leaves the detector idle.
func (d *Detector) Start(ctx context.Context) error {
	d.Stop()

	d.mu.Lock()
	d.generation++
	gen := d.generation
	d.lastErr = nil
	d.mu.Unlock()

	sess, err := d.source.Open(ctx)
	if err != nil {
		d.mu.Lock()
		if d.generation == gen {
			d.lastErr = err
		}
		d.mu.Unlock()
		d.log.Error().Err(err).Msg("Failed to acquire audio input")
		return fmt.Errorf("failed to acquire audio input: %w", err)
	}

	d.mu.Lock()
	if d.generation != gen {
		d.mu.Unlock()
		if err := sess.Close(); err != nil {
			logger.Warnf("Failed to release abandoned audio session: %v", err)
		}
		return ErrStopped
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	pipeline := NewPipeline(d.cfg)
	t := d.newTicker(time.Second / time.Duration(d.cfg.FrameRate))

	d.session = sess
	d.cancel = cancel
	d.done = done
	d.pipeline = pipeline
	d.result = DetectionResult{IsDetecting: true}
	d.mu.Unlock()

	go d.run(loopCtx, gen, sess, pipeline, t, done)

	d.log.Debug().Int("frame_rate", d.cfg.FrameRate).Msg("Blow detection started")
	return nil
}

// Stop halts analysis and releases the input. It is safe to call at any
// time, including repeatedly and while Start is still acquiring the input.
func (d *Detector) Stop() {
	caller := goroutineID()

	d.mu.Lock()
	d.generation++
	sess, cancel, done := d.session, d.cancel, d.done
	inCallback := done != nil && caller != 0 && d.loopID == caller
	d.session, d.cancel, d.done, d.pipeline = nil, nil, nil, nil
	d.loopID = 0
	d.result = DetectionResult{}
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil && !inCallback {
		<-done
	}
	if sess != nil {
		if err := sess.Close(); err != nil {
			logger.Warnf("Failed to release audio session: %v", err)
		}
		d.log.Debug().Msg("Blow detection stopped")
	}
}

// State returns the current detection view.
func (d *Detector) State() DetectionResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.result
}

// Calibration returns the calibration state of the live session, or the
// zero (uncalibrated) state when idle.
func (d *Detector) Calibration() CalibrationState {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipeline == nil {
		return CalibrationState{}
	}
	return d.pipeline.Calibration()
}

// Intensity returns the pipeline's raw, smoothed and debounce readings.
func (d *Detector) Intensity() IntensityState {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipeline == nil {
		return IntensityState{}
	}
	return d.pipeline.Intensity()
}

// Err returns the error that ended the last session attempt, if any.
func (d *Detector) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func (d *Detector) run(ctx context.Context, gen uint64, sess audio.Session, p *Pipeline, t ticker, done chan struct{}) {
	defer close(done)
	defer t.Stop()

	d.mu.Lock()
	if d.generation == gen {
		d.loopID = goroutineID()
	}
	d.mu.Unlock()

	buf := make([]float64, maxWindowSamples)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			d.fail(gen, sess.Err())
			return
		case <-t.C():
		}

		level := RMS(buf[:sess.Window(buf)])

		d.mu.Lock()
		if d.generation != gen {
			d.mu.Unlock()
			return
		}
		intensity, fired := p.Frame(level)
		cal := p.Calibration()
		d.result = DetectionResult{
			IsDetecting: true,
			Intensity:   intensity,
			Calibrated:  cal.Calibrated,
			Baseline:    cal.Baseline,
		}
		res := d.result
		onFrame, onBlow := d.onFrame, d.onBlow
		d.mu.Unlock()

		if onFrame != nil {
			onFrame(res)
			if !d.current(gen) {
				return
			}
		}
		if fired {
			d.log.Debug().Float64("intensity", intensity).Msg("Blow detected")
			if onBlow != nil {
				onBlow()
			}
		}
		if !d.current(gen) {
			return
		}
	}
}

func (d *Detector) current(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generation == gen
}

// fail tears down a session whose input ended on its own.
func (d *Detector) fail(gen uint64, err error) {
	if err == nil {
		err = audio.ErrStreamEnded
	}

	d.mu.Lock()
	if d.generation != gen {
		d.mu.Unlock()
		return
	}
	d.generation++
	sess, cancel := d.session, d.cancel
	d.session, d.cancel, d.done, d.pipeline = nil, nil, nil, nil
	d.loopID = 0
	d.result = DetectionResult{}
	d.lastErr = err
	onError := d.onError
	d.mu.Unlock()

	cancel()
	if cerr := sess.Close(); cerr != nil {
		logger.Warnf("Failed to release audio session: %v", cerr)
	}
	logger.Error("Audio input ended, blow detection stopped", err)

	if onError != nil {
		onError(err)
	}
}
