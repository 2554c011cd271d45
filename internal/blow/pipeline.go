package blow

import (
	"math"

	"github.com/dooshek/candleblow/internal/logger"
	"github.com/dooshek/candleblow/internal/types"
)

// Smoothed values below this are reported as silence
const settleFloor = 0.01

// CalibrationState tracks the ambient-noise baseline of one session.
// Once Calibrated is set, Baseline never changes.
type CalibrationState struct {
	SamplesCollected int
	RunningSum       float64
	Baseline         float64
	Calibrated       bool
}

// IntensityState is the per-frame loudness reading.
type IntensityState struct {
	Raw                   float64
	Smoothed              float64 // always within [0,100]
	ConsecutiveHighFrames int
}

// Pipeline turns per-frame RMS readings into a 0-100 intensity and blow
// events. It calibrates against ambient noise for the first frames of a
// session and is not safe for concurrent use.
type Pipeline struct {
	cfg         types.DetectorConfig
	calibration CalibrationState
	raw         float64
	smoothed    float64
	trigger     *Trigger
}

func NewPipeline(cfg types.DetectorConfig) *Pipeline {
	cfg = cfg.WithDefaults()
	return &Pipeline{
		cfg:     cfg,
		trigger: NewTrigger(cfg.BlowThreshold, cfg.ConsecutiveFrames),
	}
}

// Frame processes one analysis frame and returns the smoothed intensity and
// whether a blow was detected on this frame. While uncalibrated it always
// returns zero.
func (p *Pipeline) Frame(rms float64) (float64, bool) {
	if !p.calibration.Calibrated {
		p.calibrate(rms)
		return 0, false
	}

	p.raw = p.RawVolume(rms)
	p.smooth(p.raw)
	return p.smoothed, p.trigger.Observe(p.smoothed)
}

func (p *Pipeline) calibrate(rms float64) {
	c := &p.calibration
	c.RunningSum += rms
	c.SamplesCollected++
	if c.SamplesCollected >= p.cfg.CalibrationFrames {
		c.Baseline = c.RunningSum / float64(p.cfg.CalibrationFrames)
		c.Calibrated = true
		logger.Debugf("Baseline calibrated: %.5f", c.Baseline)
	}
}

// RawVolume maps an RMS reading onto 0-100 relative to the calibrated
// baseline. Readings within ThresholdRatio of the baseline are silence;
// MaxExcessRatio of the baseline beyond that is full scale.
func (p *Pipeline) RawVolume(rms float64) float64 {
	baseline := p.calibration.Baseline
	if baseline <= 0 {
		baseline = p.cfg.BaselineEpsilon
	}

	relative := math.Max(0, rms-baseline)
	threshold := baseline * p.cfg.ThresholdRatio
	if relative < threshold {
		return 0
	}

	excess := relative - threshold
	maxExcess := baseline * p.cfg.MaxExcessRatio
	return math.Min(100, excess/maxExcess*100)
}

// smooth blends raw into the running intensity, rising faster than it decays.
func (p *Pipeline) smooth(raw float64) {
	factor := p.cfg.SmoothingDown
	if raw > p.smoothed {
		factor = p.cfg.SmoothingUp
	}
	p.smoothed = p.smoothed*(1-factor) + raw*factor
	p.smoothed = math.Max(0, math.Min(100, p.smoothed))
	if p.smoothed < settleFloor {
		p.smoothed = 0
	}
}

func (p *Pipeline) Calibration() CalibrationState {
	return p.calibration
}

func (p *Pipeline) Intensity() IntensityState {
	return IntensityState{
		Raw:                   p.raw,
		Smoothed:              p.smoothed,
		ConsecutiveHighFrames: p.trigger.Consecutive(),
	}
}

// Reset returns the pipeline to an uncalibrated, silent state.
func (p *Pipeline) Reset() {
	p.calibration = CalibrationState{}
	p.raw = 0
	p.smoothed = 0
	p.trigger.Reset()
}
