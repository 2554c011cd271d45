package notification

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/dooshek/candleblow/internal/logger"
	"github.com/dooshek/candleblow/internal/types"
)

const appTitle = "Candleblow"

// A song shorter than this is not restarted before the interval has passed
const minMusicLoop = time.Second

// Extensions tried, in order, for clips that are not configured explicitly
var clipExtensions = []string{".oga", ".ogg", ".wav", ".mp3", ".aiff"}

// Notifier defines the interface for desktop notifications and sound cues
type Notifier interface {
	Notify(title, message string) error
	NotifyCelebration(name string) error
	PlayBlowSound() error
	PlayConfettiSound() error
	StartMusic() error
	StopMusic()
}

// SilentNotifier is a no-op implementation for daemon and replay mode
type SilentNotifier struct{}

func NewSilent() Notifier {
	return &SilentNotifier{}
}

func (s *SilentNotifier) Notify(title, message string) error  { return nil }
func (s *SilentNotifier) NotifyCelebration(name string) error { return nil }
func (s *SilentNotifier) PlayBlowSound() error                { return nil }
func (s *SilentNotifier) PlayConfettiSound() error            { return nil }
func (s *SilentNotifier) StartMusic() error                   { return nil }
func (s *SilentNotifier) StopMusic()                          {}

type baseNotifier struct {
	platform platformNotifier
	sounds   bool
	blow     string
	confetti string
	music    types.MusicConfig

	musicMu   sync.Mutex
	stopMusic func()
}

type platformNotifier interface {
	send(title, message string) error
	play(path string) error
	// playOnce plays path at volume (0-1) and blocks until it ends or ctx is done.
	playOnce(ctx context.Context, path string, volume float64) error
}

// New creates a platform-specific notifier. Clips not set in cfg are looked
// up as blow.*, confetti.* and birthday-song.* in soundsDir.
func New(cfg types.SoundsConfig, soundsDir string) Notifier {
	logger.Debug("Initializing notification system")
	var platform platformNotifier
	switch runtime.GOOS {
	case "darwin":
		logger.Debug("Using Darwin (macOS) notifier")
		platform = newDarwinNotifier()
	default:
		logger.Debug("Using Linux notifier")
		platform = newLinuxNotifier()
	}
	return newBaseNotifier(platform, cfg, soundsDir)
}

func newBaseNotifier(platform platformNotifier, cfg types.SoundsConfig, soundsDir string) *baseNotifier {
	music := cfg.Music.WithDefaults()
	music.Path = resolveClip(music.Path, soundsDir, "birthday-song")
	return &baseNotifier{
		platform: platform,
		sounds:   cfg.Enabled,
		blow:     resolveClip(cfg.Blow, soundsDir, "blow"),
		confetti: resolveClip(cfg.Confetti, soundsDir, "confetti"),
		music:    music,
	}
}

// resolveClip returns the configured clip, or the first existing
// dir/name.ext. An empty result means there is nothing to play.
func resolveClip(configured, dir, name string) string {
	if configured != "" {
		return configured
	}
	if dir == "" {
		return ""
	}
	for _, ext := range clipExtensions {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func (n *baseNotifier) Notify(title, message string) error {
	return n.platform.send(title, message)
}

func (n *baseNotifier) NotifyCelebration(name string) error {
	if name == "" {
		return n.Notify(appTitle, "All candles are out. Happy Birthday!")
	}
	return n.Notify(appTitle, fmt.Sprintf("All candles are out. Happy Birthday, %s!", name))
}

func (n *baseNotifier) PlayBlowSound() error {
	return n.playClip("blow", n.blow)
}

func (n *baseNotifier) PlayConfettiSound() error {
	return n.playClip("confetti", n.confetti)
}

// playClip plays path if sounds are on. A missing clip is not an error.
func (n *baseNotifier) playClip(name, path string) error {
	if !n.sounds {
		return nil
	}
	if path == "" {
		logger.Debugf("No %s sound configured, skipping", name)
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		logger.Warnf("Sound file %s not available: %v", path, err)
		return nil
	}
	return n.platform.play(path)
}

// StartMusic loops the birthday song in the background until StopMusic.
// It does nothing when music is off, the song is missing or it already plays.
func (n *baseNotifier) StartMusic() error {
	if !n.sounds || !n.music.Enabled {
		return nil
	}
	if n.music.Path == "" {
		logger.Debug("No birthday song configured, skipping music")
		return nil
	}
	if _, err := os.Stat(n.music.Path); err != nil {
		logger.Warnf("Birthday song %s not available: %v", n.music.Path, err)
		return nil
	}

	n.musicMu.Lock()
	defer n.musicMu.Unlock()
	if n.stopMusic != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go n.loopMusic(ctx, done)
	n.stopMusic = func() {
		cancel()
		<-done
	}
	logger.Debugf("Playing birthday song %s", n.music.Path)
	return nil
}

// StopMusic stops the song and waits for the player to exit.
func (n *baseNotifier) StopMusic() {
	n.musicMu.Lock()
	stop := n.stopMusic
	n.stopMusic = nil
	n.musicMu.Unlock()

	if stop != nil {
		stop()
		logger.Debug("Birthday song stopped")
	}
}

func (n *baseNotifier) loopMusic(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		started := time.Now()
		err := n.platform.playOnce(ctx, n.music.Path, n.music.Volume)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warnf("Birthday song stopped: %v", err)
			return
		}
		if wait := minMusicLoop - time.Since(started); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}
}
