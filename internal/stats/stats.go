package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dooshek/candleblow/internal/fileops"
	"github.com/dooshek/candleblow/internal/logger"
)

const statsFilename = "stats.json"

// SourceStats holds statistics for one audio source (microphone or replay file)
type SourceStats struct {
	Sessions     int       `json:"sessions"`
	Blows        int       `json:"blows"`
	TotalSeconds float64   `json:"total_seconds"`
	LastBaseline float64   `json:"last_baseline"`
	LastSession  time.Time `json:"last_session"`
}

// Stats holds all detection statistics
type Stats struct {
	Sources map[string]*SourceStats `json:"sources"`
}

// Session summarizes one finished detection session.
type Session struct {
	Source   string
	Blows    int
	Duration time.Duration
	Baseline float64 // zero when calibration never finished
	Ended    time.Time
}

// StatsManager manages detection statistics persistence
type StatsManager struct {
	stats    Stats
	filePath string
	mu       sync.Mutex
}

// NewStatsManager creates a stats manager backed by the config directory
func NewStatsManager() (*StatsManager, error) {
	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file operations: %w", err)
	}
	return NewStatsManagerAt(filepath.Join(fileOps.GetConfigDir(), statsFilename)), nil
}

// NewStatsManagerAt creates a stats manager persisting to filePath and loads existing data
func NewStatsManagerAt(filePath string) *StatsManager {
	sm := &StatsManager{
		filePath: filePath,
		stats:    Stats{Sources: make(map[string]*SourceStats)},
	}

	if err := sm.load(); err != nil {
		logger.Debugf("Could not load stats (will start fresh): %v", err)
	}
	return sm
}

// AddSession records a finished session and persists immediately
func (sm *StatsManager) AddSession(s Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.stats.Sources == nil {
		sm.stats.Sources = make(map[string]*SourceStats)
	}
	src, ok := sm.stats.Sources[s.Source]
	if !ok {
		src = &SourceStats{}
		sm.stats.Sources[s.Source] = src
	}

	src.Sessions++
	src.Blows += s.Blows
	src.TotalSeconds += s.Duration.Seconds()
	if s.Baseline > 0 {
		src.LastBaseline = s.Baseline
	}
	src.LastSession = s.Ended

	if err := sm.save(); err != nil {
		logger.Error("Failed to save stats after session", err)
	}
}

// GetStats returns a deep copy of current statistics
func (sm *StatsManager) GetStats() Stats {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	statsCopy := Stats{Sources: make(map[string]*SourceStats, len(sm.stats.Sources))}
	for name, src := range sm.stats.Sources {
		c := *src
		statsCopy.Sources[name] = &c
	}
	return statsCopy
}

// GetStatsJSON returns statistics as a JSON string (for D-Bus)
func (sm *StatsManager) GetStatsJSON() (string, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	data, err := json.Marshal(sm.stats)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stats to JSON: %w", err)
	}
	return string(data), nil
}

// Reset clears all statistics and persists empty state
func (sm *StatsManager) Reset() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.stats = Stats{Sources: make(map[string]*SourceStats)}
	if err := sm.save(); err != nil {
		return fmt.Errorf("failed to save reset stats: %w", err)
	}
	return nil
}

func (sm *StatsManager) load() error {
	data, err := os.ReadFile(sm.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debugf("Stats file not found, starting fresh: %s", sm.filePath)
			return nil
		}
		return fmt.Errorf("failed to read stats file: %w", err)
	}

	if err := json.Unmarshal(data, &sm.stats); err != nil {
		return fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	if sm.stats.Sources == nil {
		sm.stats.Sources = make(map[string]*SourceStats)
	}

	logger.Debugf("Loaded stats from %s", sm.filePath)
	return nil
}

func (sm *StatsManager) save() error {
	dir := filepath.Dir(sm.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create stats directory: %w", err)
	}

	data, err := json.MarshalIndent(sm.stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	// Write atomically by writing to temp file and renaming
	tempFile := sm.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp stats file: %w", err)
	}
	if err := os.Rename(tempFile, sm.filePath); err != nil {
		return fmt.Errorf("failed to rename temp stats file: %w", err)
	}

	logger.Debugf("Saved stats to %s", sm.filePath)
	return nil
}
