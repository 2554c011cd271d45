package config

import (
	"errors"
	"fmt"

	"github.com/dooshek/candleblow/internal/fileops"
	"github.com/dooshek/candleblow/internal/logger"
	"github.com/dooshek/candleblow/internal/types"
	"gopkg.in/yaml.v3"
)

const (
	configFilename = "candleblow.yaml"
)

// LoadConfig reads the config from the default location. A missing file
// yields (nil, nil) so callers can fall back to types.DefaultConfig.
func LoadConfig() (*types.Config, error) {
	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file operations: %w", err)
	}
	return Load(fileOps)
}

// Load reads the config through fileOps.
func Load(fileOps fileops.FileOps) (*types.Config, error) {
	if err := fileOps.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	data, err := fileOps.LoadConfig(configFilename)
	if err != nil {
		if errors.Is(err, fileops.ErrConfigNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config types.Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

func SaveConfig(config *types.Config) error {
	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		return fmt.Errorf("failed to initialize file operations: %w", err)
	}
	return Save(fileOps, config)
}

// Save merges config into whatever is already on disk and writes it back.
func Save(fileOps fileops.FileOps, config *types.Config) error {
	existingConfig, err := Load(fileOps)
	if err != nil {
		logger.Warnf("Failed to load existing config: %v", err)
	} else if existingConfig != nil {
		mergeConfigs(existingConfig, config)
		config = existingConfig
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := fileOps.SaveConfig(configFilename, data); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// mergeConfigs copies every explicitly set field of sourceConfig over targetConfig
func mergeConfigs(targetConfig, sourceConfig *types.Config) {
	src, dst := sourceConfig.Detector, &targetConfig.Detector
	if src.CalibrationFrames != 0 {
		dst.CalibrationFrames = src.CalibrationFrames
	}
	if src.BlowThreshold != 0 {
		dst.BlowThreshold = src.BlowThreshold
	}
	if src.ConsecutiveFrames != 0 {
		dst.ConsecutiveFrames = src.ConsecutiveFrames
	}
	if src.SmoothingUp != 0 {
		dst.SmoothingUp = src.SmoothingUp
	}
	if src.SmoothingDown != 0 {
		dst.SmoothingDown = src.SmoothingDown
	}
	if src.ThresholdRatio != 0 {
		dst.ThresholdRatio = src.ThresholdRatio
	}
	if src.MaxExcessRatio != 0 {
		dst.MaxExcessRatio = src.MaxExcessRatio
	}
	if src.FrameRate != 0 {
		dst.FrameRate = src.FrameRate
	}
	if src.BaselineEpsilon != 0 {
		dst.BaselineEpsilon = src.BaselineEpsilon
	}

	if sourceConfig.Capture.SampleRate != 0 {
		targetConfig.Capture.SampleRate = sourceConfig.Capture.SampleRate
	}
	if sourceConfig.Capture.WindowSize != 0 {
		targetConfig.Capture.WindowSize = sourceConfig.Capture.WindowSize
	}
	if sourceConfig.Capture.Device != "" {
		targetConfig.Capture.Device = sourceConfig.Capture.Device
	}

	if sourceConfig.Cake.Candles != 0 {
		targetConfig.Cake.Candles = sourceConfig.Cake.Candles
	}
	if sourceConfig.Cake.AllBlownDelay != 0 {
		targetConfig.Cake.AllBlownDelay = sourceConfig.Cake.AllBlownDelay
	}

	if sourceConfig.Link.BaseURL != "" {
		targetConfig.Link.BaseURL = sourceConfig.Link.BaseURL
	}
	if sourceConfig.Link.TTL != 0 {
		targetConfig.Link.TTL = sourceConfig.Link.TTL
	}

	// Enabled is a plain bool, so a saved config always carries it
	targetConfig.Sounds.Enabled = sourceConfig.Sounds.Enabled
	if sourceConfig.Sounds.Blow != "" {
		targetConfig.Sounds.Blow = sourceConfig.Sounds.Blow
	}
	if sourceConfig.Sounds.Confetti != "" {
		targetConfig.Sounds.Confetti = sourceConfig.Sounds.Confetti
	}
	targetConfig.Sounds.Music.Enabled = sourceConfig.Sounds.Music.Enabled
	if sourceConfig.Sounds.Music.Path != "" {
		targetConfig.Sounds.Music.Path = sourceConfig.Sounds.Music.Path
	}
	if sourceConfig.Sounds.Music.Volume != 0 {
		targetConfig.Sounds.Music.Volume = sourceConfig.Sounds.Music.Volume
	}

	if sourceConfig.ManualKey.Key != "" {
		targetConfig.ManualKey = sourceConfig.ManualKey
	}
}
