package keyboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MarinX/keylogger"
	"github.com/dooshek/candleblow/internal/logger"
	"github.com/dooshek/candleblow/internal/types"
)

// Presses closer together than this count as one blow
const debounceThreshold = 500 * time.Millisecond

// ModifierState tracks the state of modifier keys (Ctrl, Shift, Alt, Super)
type ModifierState struct {
	Ctrl  bool
	Shift bool
	Alt   bool
	Super bool
}

// Monitor turns a key combination into manual blows, for when the
// microphone is unavailable.
type Monitor struct {
	keyConfig        types.KeyBinding
	targetKeyCode    uint16
	modifierState    ModifierState
	onPress          func()
	keyboard         *keylogger.KeyLogger
	lastKeyEventTime time.Time
	now              func() time.Time
}

// NewMonitor creates a monitor that calls onPress for every debounced press of keyConfig
func NewMonitor(keyConfig types.KeyBinding, onPress func()) (*Monitor, error) {
	code, ok := KeyCodes[strings.ToLower(keyConfig.Key)]
	if !ok {
		return nil, fmt.Errorf("unsupported key %q", keyConfig.Key)
	}
	return &Monitor{
		keyConfig:     keyConfig,
		targetKeyCode: code,
		onPress:       onPress,
		now:           time.Now,
	}, nil
}

// Start reads keyboard events until ctx is cancelled or the device goes away.
func (m *Monitor) Start(ctx context.Context) error {
	keyboards := keylogger.FindAllKeyboardDevices()
	if len(keyboards) == 0 {
		return fmt.Errorf("no keyboard devices found")
	}

	kbd, err := keylogger.New(keyboards[0])
	if err != nil {
		if strings.Contains(err.Error(), "permission denied") {
			fmt.Printf("Cannot access keyboard device.\n" +
				"Solution: \n" +
				"1. Add yourself to the input group: sudo usermod -aG input $USER \n" +
				"2. Log out and log back in (or restart your system) \n" +
				"3. Run the program again \n\n")
		}
		return fmt.Errorf("error initializing keylogger: %w", err)
	}
	m.keyboard = kbd

	stop := context.AfterFunc(ctx, m.Stop)
	defer stop()

	for e := range kbd.Read() {
		m.handleEvent(e)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return ctx.Err()
}

func (m *Monitor) Stop() {
	if m.keyboard != nil {
		m.keyboard.Close()
	}
}

func (m *Monitor) handleEvent(e keylogger.InputEvent) {
	if e.Type != keylogger.EvKey {
		return
	}
	code := e.Code
	if e.KeyPress() {
		switch code {
		case LeftControl, RightControl:
			m.modifierState.Ctrl = true
		case LeftShift, RightShift:
			m.modifierState.Shift = true
		case LeftAlt, RightAlt:
			m.modifierState.Alt = true
		case Super:
			m.modifierState.Super = true
		default:
			if code != m.targetKeyCode || !m.checkModifiers() {
				return
			}
			now := m.now()
			if !m.lastKeyEventTime.IsZero() && now.Sub(m.lastKeyEventTime) <= debounceThreshold {
				logger.Debugf("Ignoring manual blow - %d ms after previous",
					now.Sub(m.lastKeyEventTime).Milliseconds())
				return
			}
			m.lastKeyEventTime = now
			logger.Debug("Manual blow key pressed")
			m.onPress()
		}
	} else if e.KeyRelease() {
		switch code {
		case LeftControl, RightControl:
			m.modifierState.Ctrl = false
		case LeftShift, RightShift:
			m.modifierState.Shift = false
		case LeftAlt, RightAlt:
			m.modifierState.Alt = false
		case Super:
			m.modifierState.Super = false
		}
	}
}

// checkModifiers verifies if current modifier state matches the configuration
func (m *Monitor) checkModifiers() bool {
	return m.modifierState.Ctrl == m.keyConfig.Ctrl &&
		m.modifierState.Shift == m.keyConfig.Shift &&
		m.modifierState.Alt == m.keyConfig.Alt &&
		m.modifierState.Super == m.keyConfig.Super
}

// FormatKeyCombo formats a key combination into a human-readable string
func FormatKeyCombo(combo types.KeyCombo) string {
	var parts []string
	if combo.HasCtrl() {
		parts = append(parts, "CTRL")
	}
	if combo.HasShift() {
		parts = append(parts, "SHIFT")
	}
	if combo.HasAlt() {
		parts = append(parts, "ALT")
	}
	if combo.HasSuper() {
		parts = append(parts, "SUPER")
	}
	if key := combo.GetKey(); key != "" {
		parts = append(parts, strings.ToUpper(key))
	}
	return strings.Join(parts, " + ")
}
