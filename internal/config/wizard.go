package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/MarinX/keylogger"
	"github.com/dooshek/candleblow/internal/keyboard"
	"github.com/dooshek/candleblow/internal/logger"
	"github.com/dooshek/candleblow/internal/types"
	"github.com/fatih/color"
)

var errNoKeyboard = errors.New("no keyboard devices found")

type KeyPress struct {
	Key   string
	Ctrl  bool
	Shift bool
	Alt   bool
	Super bool
}

// Implement types.KeyCombo for KeyPress
func (kp KeyPress) HasCtrl() bool  { return kp.Ctrl }
func (kp KeyPress) HasShift() bool { return kp.Shift }
func (kp KeyPress) HasAlt() bool   { return kp.Alt }
func (kp KeyPress) HasSuper() bool { return kp.Super }
func (kp KeyPress) GetKey() string { return kp.Key }

func (kp KeyPress) binding() types.KeyBinding {
	return types.KeyBinding{Key: kp.Key, Ctrl: kp.Ctrl, Shift: kp.Shift, Alt: kp.Alt, Super: kp.Super}
}

func RunWizard() error {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	bold.Println("\n🎂 Welcome to the Candleblow Configuration Wizard!")
	fmt.Println("\nThis wizard sets up your cake, the blow sensitivity and the manual blow key.")

	current, err := LoadConfig()
	if err != nil {
		logger.Warnf("Ignoring unreadable config: %v", err)
	}
	if current == nil {
		current = types.DefaultConfig()
	}

	reader := bufio.NewReader(os.Stdin)
	config := &types.Config{
		Sounds: current.Sounds,
	}

	cakeCfg := current.GetCakeConfig()
	for {
		answer, err := ask(reader, cyan, "How many candles?", strconv.Itoa(cakeCfg.Candles))
		if err != nil {
			return err
		}
		candles, err := parseCandles(answer)
		if err == nil {
			config.Cake.Candles = candles
			break
		}
		yellow.Println(err)
	}

	detCfg := current.GetDetectorConfig()
	for {
		answer, err := ask(reader, cyan, "Blow threshold (1-99, lower is more sensitive)?",
			strconv.FormatFloat(detCfg.BlowThreshold, 'f', -1, 64))
		if err != nil {
			return err
		}
		threshold, err := parseThreshold(answer)
		if err == nil {
			config.Detector.BlowThreshold = threshold
			break
		}
		yellow.Println(err)
	}

	linkCfg := current.GetLinkConfig()
	for {
		answer, err := ask(reader, cyan, "Base URL for shared links?", linkCfg.BaseURL)
		if err != nil {
			return err
		}
		baseURL, err := parseBaseURL(answer)
		if err == nil {
			config.Link.BaseURL = baseURL
			break
		}
		yellow.Println(err)
	}

	musicDefault := "n"
	if current.Sounds.Music.Enabled {
		musicDefault = "y"
	}
	answer, err := ask(reader, cyan, "Play the birthday song while the cake is shown? [y/n]", musicDefault)
	if err != nil {
		return err
	}
	config.Sounds.Music.Enabled = isYes(answer)

	for {
		cyan.Println("\nPress the key combination used to blow a candle by hand (Ctrl, Alt, Shift, Super + key)...")
		fmt.Println("This key is used when the microphone is unavailable.")
		fmt.Println("(Press Ctrl+C to cancel)")

		keyPress, err := captureKeys()
		if errors.Is(err, errNoKeyboard) {
			logger.Warn("No readable keyboard device, falling back to a typed key")
			keyPress, err = typedKey(reader, cyan)
		}
		if err != nil {
			logger.Error("Failed to capture key", err)
			return err
		}

		yellow.Print("\nSelected key is: ")
		fmt.Println(keyboard.FormatKeyCombo(keyPress))

		answer, err := ask(reader, nil, "Do you want to use this key? [Y/n]", "y")
		if err != nil {
			return err
		}
		if !isYes(answer) {
			fmt.Println("\nOK, let's try again.")
			continue
		}
		config.ManualKey = keyPress.binding()
		break
	}

	if err := SaveConfig(config); err != nil {
		logger.Error("Failed to save config", err)
		return err
	}

	green.Println("\n✅ Configuration saved successfully!")
	fmt.Printf("%d candles, threshold %.0f, manual key %s\n",
		config.Cake.Candles, config.Detector.BlowThreshold, keyboard.FormatKeyCombo(config.ManualKey))
	return nil
}

// ask prints prompt with its default and returns the trimmed answer, or def
// when the answer is empty.
func ask(reader *bufio.Reader, c *color.Color, prompt, def string) (string, error) {
	if c != nil {
		c.Printf("\n%s [%s]: ", prompt, def)
	} else {
		fmt.Printf("\n%s: ", prompt)
	}

	response, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		logger.Error("Failed to read input", err)
		return "", err
	}
	response = cleanInput(response)
	if response == "" {
		return def, nil
	}
	return response, nil
}

// cleanInput trims whitespace and strips control characters.
func cleanInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "" || s == "y" || s == "yes"
}

func parseCandles(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 99 {
		return 0, fmt.Errorf("please enter a whole number between 1 and 99")
	}
	return n, nil
}

func parseThreshold(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 1 || v > 99 {
		return 0, fmt.Errorf("please enter a number between 1 and 99")
	}
	return v, nil
}

func parseBaseURL(s string) (string, error) {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("please enter an http(s) URL")
	}
	return u.String(), nil
}

// typedKey reads the manual key from stdin when no input device is readable.
func typedKey(reader *bufio.Reader, c *color.Color) (KeyPress, error) {
	for {
		answer, err := ask(reader, c, "Type the key name (a-z, 0-9, space)", "b")
		if err != nil {
			return KeyPress{}, err
		}
		key := strings.ToLower(answer)
		if _, ok := keyboard.KeyCodes[key]; ok {
			return KeyPress{Key: key}, nil
		}
		fmt.Printf("Unknown key %q\n", answer)
	}
}

func captureKeys() (KeyPress, error) {
	keyboards := keylogger.FindAllKeyboardDevices()
	if len(keyboards) == 0 {
		return KeyPress{}, errNoKeyboard
	}

	kbd, err := keylogger.New(keyboards[0])
	if err != nil {
		err = fmt.Errorf("failed to initialize keylogger: %w", err)
		logger.Error("Failed to initialize keylogger", err)
		return KeyPress{}, err
	}
	defer kbd.Close()

	var keyPress KeyPress
	for e := range kbd.Read() {
		if e.Type != keylogger.EvKey {
			continue
		}
		pressed := e.KeyPress()
		if !pressed && !e.KeyRelease() {
			continue
		}

		switch code := uint16(e.Code); code {
		case keyboard.LeftControl, keyboard.RightControl:
			keyPress.Ctrl = pressed
		case keyboard.LeftShift, keyboard.RightShift:
			keyPress.Shift = pressed
		case keyboard.LeftAlt, keyboard.RightAlt:
			keyPress.Alt = pressed
		case keyboard.Super:
			keyPress.Super = pressed
		default:
			if key, ok := keyboard.KeyMap[code]; ok && pressed {
				keyPress.Key = key
				return keyPress, nil
			}
			continue
		}
		fmt.Print("\033[2K\rKey: " + keyboard.FormatKeyCombo(keyPress))
	}
	return KeyPress{}, fmt.Errorf("keyboard device closed")
}
