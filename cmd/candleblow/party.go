package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dooshek/candleblow/internal/audio"
	"github.com/dooshek/candleblow/internal/blow"
	"github.com/dooshek/candleblow/internal/cake"
	"github.com/dooshek/candleblow/internal/keyboard"
	"github.com/dooshek/candleblow/internal/logger"
	"github.com/dooshek/candleblow/internal/notification"
	"github.com/dooshek/candleblow/internal/stats"
	"github.com/dooshek/candleblow/internal/types"
	"golang.org/x/sync/errgroup"
)

// Terminal redraw interval
const renderInterval = 100 * time.Millisecond

// presenter receives the events an external UI cares about.
type presenter interface {
	BlowDetected(remaining int)
	Frame(r blow.DetectionResult)
	DetectionError(err error)
	AllCandlesBlown()
}

type nopPresenter struct{}

func (nopPresenter) BlowDetected(int)           {}
func (nopPresenter) Frame(blow.DetectionResult) {}
func (nopPresenter) DetectionError(error)       {}
func (nopPresenter) AllCandlesBlown()           {}

type partyOptions struct {
	source     audio.Source
	sourceName string
	replay     bool // a replay ends the party when the file runs out
	stay       bool // keep running after the last candle (D-Bus daemon)
	detector   types.DetectorConfig
	cake       types.CakeConfig
	manualKey  types.KeyBinding
	name       string
	message    string
	notifier   notification.Notifier
	stats      *stats.StatsManager
	out        io.Writer // nil disables the terminal cake
}

// party ties one detection session to a cake: every blow puts out a candle,
// and the last candle ends listening and starts the celebration.
type party struct {
	opts      partyOptions
	cake      *cake.Cake
	detector  *blow.Detector
	presenter presenter

	failures   chan error
	finished   chan struct{}
	finishOnce sync.Once

	mu       sync.Mutex
	blows    int
	baseline float64
	manual   bool
}

func newParty(opts partyOptions) *party {
	if opts.notifier == nil {
		opts.notifier = notification.NewSilent()
	}
	p := &party{
		opts:      opts,
		presenter: nopPresenter{},
		failures:  make(chan error, 1),
		finished:  make(chan struct{}),
	}
	p.cake = cake.New(opts.cake.Candles, opts.cake.AllBlownDelay, p.allBlown)
	p.detector = blow.NewDetector(opts.source, opts.detector, p.handleBlow)
	p.detector.SetFrameHandler(p.handleFrame)
	p.detector.SetErrorHandler(p.handleFailure)
	return p
}

func (p *party) setPresenter(pr presenter) {
	p.presenter = pr
}

// run listens until every candle is out, the replay ends or ctx is done.
func (p *party) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	if err := p.opts.notifier.StartMusic(); err != nil {
		logger.Warnf("Could not play birthday song: %v", err)
	}
	defer p.opts.notifier.StopMusic()

	if err := p.detector.Start(gctx); err != nil {
		if !audio.IsDeviceError(err) {
			return err
		}
		logger.Warnf("Microphone unavailable, switching to manual blowing: %v", err)
		p.presenter.DetectionError(err)
		g.Go(func() error { return p.runManual(gctx) })
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-p.finished:
			if p.opts.stay {
				<-gctx.Done()
				return nil
			}
			cancel()
			return nil
		case err := <-p.failures:
			if p.opts.replay && errors.Is(err, audio.ErrStreamEnded) {
				logger.Info("Replay finished")
				cancel()
				return nil
			}
			p.presenter.DetectionError(err)
			if nerr := p.opts.notifier.Notify("🎂 Candleblow", "Microphone lost, press the blow key instead"); nerr != nil {
				logger.Warn("Could not send notification")
			}
			return p.runManual(gctx)
		}
	})

	if p.opts.out != nil {
		g.Go(func() error {
			p.renderLoop(gctx)
			return nil
		})
	}

	err := g.Wait()
	p.detector.Stop()
	p.cake.Stop()
	p.recordStats(started)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runManual turns presses of the configured key into blows until ctx is done.
func (p *party) runManual(ctx context.Context) error {
	monitor, err := keyboard.NewMonitor(p.opts.manualKey, p.handleBlow)
	if err != nil {
		return fmt.Errorf("failed to create manual blow key: %w", err)
	}

	p.mu.Lock()
	p.manual = true
	p.mu.Unlock()

	logger.Infof("Press %s to blow out a candle", keyboard.FormatKeyCombo(p.opts.manualKey))
	if err := monitor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("manual blow key failed: %w", err)
	}
	return nil
}

func (p *party) handleBlow() {
	idx := p.cake.Blow()
	if idx < 0 {
		return
	}

	p.mu.Lock()
	p.blows++
	p.mu.Unlock()

	if err := p.opts.notifier.PlayBlowSound(); err != nil {
		logger.Warnf("Could not play blow sound: %v", err)
	}
	p.presenter.BlowDetected(p.cake.Remaining())
}

func (p *party) handleFrame(r blow.DetectionResult) {
	if r.Calibrated {
		p.mu.Lock()
		p.baseline = r.Baseline
		p.mu.Unlock()
	}
	p.presenter.Frame(r)
}

func (p *party) handleFailure(err error) {
	select {
	case p.failures <- err:
	default:
	}
}

// allBlown runs once the last candle has been out for the configured delay.
func (p *party) allBlown() {
	p.detector.Stop()

	if err := p.opts.notifier.PlayConfettiSound(); err != nil {
		logger.Warnf("Could not play confetti sound: %v", err)
	}
	if err := p.opts.notifier.NotifyCelebration(p.opts.name); err != nil {
		logger.Warn("Could not send notification")
	}
	p.presenter.AllCandlesBlown()
	logger.Info("All candles blown out")

	p.finishOnce.Do(func() { close(p.finished) })
}

func (p *party) renderLoop(ctx context.Context) {
	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			select {
			case <-p.finished:
				p.celebrate()
			default:
			}
			return
		case <-p.finished:
			p.celebrate()
			return
		case <-ticker.C:
			p.render()
		}
	}
}

func (p *party) render() {
	p.mu.Lock()
	manual := p.manual
	p.mu.Unlock()

	r := p.detector.State()
	fmt.Fprint(p.opts.out, "\033[H\033[2J")
	p.cake.Render(p.opts.out, r.Intensity, r.IsDetecting)
	if manual {
		fmt.Fprintf(p.opts.out, " Press %s to blow\n", keyboard.FormatKeyCombo(p.opts.manualKey))
	} else if r.IsDetecting && !r.Calibrated {
		fmt.Fprintln(p.opts.out, " Calibrating, stay quiet...")
	}
}

func (p *party) celebrate() {
	p.render()
	cake.RenderCelebration(p.opts.out, p.opts.name, p.opts.message)
}

func (p *party) recordStats(started time.Time) {
	if p.opts.stats == nil {
		return
	}
	p.mu.Lock()
	session := stats.Session{
		Source:   p.opts.sourceName,
		Blows:    p.blows,
		Duration: time.Since(started),
		Baseline: p.baseline,
		Ended:    time.Now(),
	}
	p.mu.Unlock()
	p.opts.stats.AddSession(session)
}
