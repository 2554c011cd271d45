package types

import "time"

// KeyCombo interface for types that can be printed as a key combination
type KeyCombo interface {
	HasCtrl() bool
	HasShift() bool
	HasAlt() bool
	HasSuper() bool
	GetKey() string
}

type KeyBinding struct {
	Key   string `yaml:"key"`   // The actual key (e.g., "a", "b", "1", etc.)
	Ctrl  bool   `yaml:"ctrl"`  // Control key modifier
	Shift bool   `yaml:"shift"` // Shift key modifier
	Alt   bool   `yaml:"alt"`   // Alt key modifier
	Super bool   `yaml:"super"` // Super (Windows/Command) key modifier
}

func (kb KeyBinding) HasCtrl() bool  { return kb.Ctrl }
func (kb KeyBinding) HasShift() bool { return kb.Shift }
func (kb KeyBinding) HasAlt() bool   { return kb.Alt }
func (kb KeyBinding) HasSuper() bool { return kb.Super }
func (kb KeyBinding) GetKey() string { return kb.Key }

// DetectorConfig holds the empirically tuned blow detection constants.
type DetectorConfig struct {
	CalibrationFrames int     `yaml:"calibration_frames"` // frames averaged into the ambient baseline
	BlowThreshold     float64 `yaml:"blow_threshold"`     // smoothed intensity (0-100) that counts as blowing
	ConsecutiveFrames int     `yaml:"consecutive_frames"` // qualifying frames needed for one blow event
	SmoothingUp       float64 `yaml:"smoothing_up"`       // EMA factor while intensity rises
	SmoothingDown     float64 `yaml:"smoothing_down"`     // EMA factor while intensity falls
	ThresholdRatio    float64 `yaml:"threshold_ratio"`    // fraction of baseline ignored above ambient
	MaxExcessRatio    float64 `yaml:"max_excess_ratio"`   // fraction of baseline mapped to full intensity
	FrameRate         int     `yaml:"frame_rate"`         // analysis frames per second
	BaselineEpsilon   float64 `yaml:"baseline_epsilon"`   // divisor floor for a silent room
}

// CaptureConfig describes how the microphone is opened.
type CaptureConfig struct {
	SampleRate       int    `yaml:"sample_rate"`
	WindowSize       int    `yaml:"window_size"` // samples analysed per frame
	Device           string `yaml:"device"`      // substring of the capture device name, empty = default
	EchoCancellation bool   `yaml:"echo_cancellation"`
	NoiseSuppression bool   `yaml:"noise_suppression"`
	AutoGainControl  bool   `yaml:"auto_gain_control"`
}

type CakeConfig struct {
	Candles       int           `yaml:"candles"`
	AllBlownDelay time.Duration `yaml:"all_blown_delay"`
}

type LinkConfig struct {
	BaseURL string        `yaml:"base_url"`
	TTL     time.Duration `yaml:"ttl"`
}

type SoundsConfig struct {
	Enabled  bool        `yaml:"enabled"`
	Blow     string      `yaml:"blow"`     // path to the blow clip, empty = bundled default name in the audio dir
	Confetti string      `yaml:"confetti"` // path to the confetti clip
	Music    MusicConfig `yaml:"music"`
}

// MusicConfig controls the birthday song looped while the cake is shown.
type MusicConfig struct {
	Enabled bool    `yaml:"enabled"`
	Path    string  `yaml:"path"`   // empty = birthday-song.* in the sounds dir
	Volume  float64 `yaml:"volume"` // 0-1
}

type Config struct {
	Detector  DetectorConfig `yaml:"detector"`
	Capture   CaptureConfig  `yaml:"capture"`
	Cake      CakeConfig     `yaml:"cake"`
	Link      LinkConfig     `yaml:"link"`
	Sounds    SoundsConfig   `yaml:"sounds"`
	ManualKey KeyBinding     `yaml:"manual_key"`
}

// DefaultDetectorConfig returns the constants the detector was tuned with.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		CalibrationFrames: 60,
		BlowThreshold:     50,
		ConsecutiveFrames: 5,
		SmoothingUp:       0.2,
		SmoothingDown:     0.15,
		ThresholdRatio:    0.2,
		MaxExcessRatio:    0.5,
		FrameRate:         60,
		BaselineEpsilon:   0.001,
	}
}

// WithDefaults fills zero fields with the tuned defaults.
func (c DetectorConfig) WithDefaults() DetectorConfig {
	d := DefaultDetectorConfig()
	if c.CalibrationFrames <= 0 {
		c.CalibrationFrames = d.CalibrationFrames
	}
	if c.BlowThreshold <= 0 {
		c.BlowThreshold = d.BlowThreshold
	}
	if c.ConsecutiveFrames <= 0 {
		c.ConsecutiveFrames = d.ConsecutiveFrames
	}
	if c.SmoothingUp <= 0 {
		c.SmoothingUp = d.SmoothingUp
	}
	if c.SmoothingDown <= 0 {
		c.SmoothingDown = d.SmoothingDown
	}
	if c.ThresholdRatio <= 0 {
		c.ThresholdRatio = d.ThresholdRatio
	}
	if c.MaxExcessRatio <= 0 {
		c.MaxExcessRatio = d.MaxExcessRatio
	}
	if c.FrameRate <= 0 {
		c.FrameRate = d.FrameRate
	}
	if c.BaselineEpsilon <= 0 {
		c.BaselineEpsilon = d.BaselineEpsilon
	}
	return c
}

// WithDefaults fills zero capture fields. Processing flags stay as configured.
func (c CaptureConfig) WithDefaults() CaptureConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 1024
	}
	return c
}

func (c *Config) GetDetectorConfig() DetectorConfig {
	return c.Detector.WithDefaults()
}

func (c *Config) GetCaptureConfig() CaptureConfig {
	return c.Capture.WithDefaults()
}

// GetCakeConfig returns cake configuration with defaults
func (c *Config) GetCakeConfig() CakeConfig {
	config := c.Cake
	if config.Candles <= 0 {
		config.Candles = 5
	}
	if config.AllBlownDelay <= 0 {
		config.AllBlownDelay = 500 * time.Millisecond
	}
	return config
}

// GetLinkConfig returns link configuration with defaults
func (c *Config) GetLinkConfig() LinkConfig {
	config := c.Link
	if config.BaseURL == "" {
		config.BaseURL = "https://dooshek.github.io/candleblow/"
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	return config
}

// GetMusicConfig returns music configuration with defaults
func (c *Config) GetMusicConfig() MusicConfig {
	return c.Sounds.Music.WithDefaults()
}

// WithDefaults fills in the volume and clamps it to 0-1.
func (m MusicConfig) WithDefaults() MusicConfig {
	if m.Volume <= 0 {
		m.Volume = 0.5
	}
	if m.Volume > 1 {
		m.Volume = 1
	}
	return m
}

func (c *Config) GetManualKey() KeyBinding {
	if c.ManualKey.Key == "" {
		return KeyBinding{Key: "b"}
	}
	return c.ManualKey
}

// DefaultConfig is what a missing config file means.
func DefaultConfig() *Config {
	return &Config{
		Detector: DefaultDetectorConfig(),
		Capture:  CaptureConfig{}.WithDefaults(),
		Sounds:   SoundsConfig{Enabled: true, Music: MusicConfig{Enabled: true}},
	}
}
