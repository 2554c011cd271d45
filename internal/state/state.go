package state

import (
	"sync"

	"github.com/dooshek/candleblow/internal/types"
)

var (
	mu       sync.RWMutex
	instance *AppState
)

// AppState is the process-wide view of the loaded configuration and the
// celebration being run.
type AppState struct {
	Config  *types.Config
	Name    string
	Message string
}

func Init(cfg *types.Config, name, message string) {
	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		return
	}
	if cfg == nil {
		cfg = types.DefaultConfig()
	}
	instance = &AppState{Config: cfg, Name: name, Message: message}
}

func Get() *AppState {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		panic("AppState not initialized")
	}
	return instance
}

func (s *AppState) GetDetectorConfig() types.DetectorConfig {
	return s.Config.GetDetectorConfig()
}

func (s *AppState) GetCaptureConfig() types.CaptureConfig {
	return s.Config.GetCaptureConfig()
}

func (s *AppState) GetCakeConfig() types.CakeConfig {
	return s.Config.GetCakeConfig()
}

// HasCelebration reports whether a name was given for the birthday message.
func (s *AppState) HasCelebration() bool {
	return s.Name != ""
}
