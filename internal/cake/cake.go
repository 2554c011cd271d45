package cake

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dooshek/candleblow/internal/logger"
	"github.com/fatih/color"
)

// Cake tracks which candles are still lit. Candles go out left to right.
type Cake struct {
	mu         sync.Mutex
	lit        []bool
	remaining  int
	delay      time.Duration
	onAllBlown func()
	timer      *time.Timer
}

// New creates a cake with the given number of lit candles. onAllBlown runs
// once, allBlownDelay after the last candle goes out.
func New(candles int, allBlownDelay time.Duration, onAllBlown func()) *Cake {
	if candles < 0 {
		candles = 0
	}
	lit := make([]bool, candles)
	for i := range lit {
		lit[i] = true
	}
	return &Cake{
		lit:        lit,
		remaining:  candles,
		delay:      allBlownDelay,
		onAllBlown: onAllBlown,
	}
}

// Blow extinguishes the first lit candle and returns its index, or -1 when
// every candle is already out.
func (c *Cake) Blow() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, lit := range c.lit {
		if !lit {
			continue
		}
		c.lit[i] = false
		c.remaining--
		logger.Debugf("Candle %d blown out, %d remaining", i+1, c.remaining)
		if c.remaining == 0 && c.onAllBlown != nil {
			c.timer = time.AfterFunc(c.delay, c.onAllBlown)
		}
		return i
	}
	return -1
}

func (c *Cake) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Cake) Candles() int {
	return len(c.lit)
}

// Lit reports whether candle i is burning. Out-of-range indexes are unlit.
func (c *Cake) Lit(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return i >= 0 && i < len(c.lit) && c.lit[i]
}

// Stop cancels a pending all-blown callback.
func (c *Cake) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
}

var (
	flameColor   = color.New(color.FgYellow, color.Bold)
	smokeColor   = color.New(color.FgHiBlack)
	candleColor  = color.New(color.FgHiYellow)
	frostColor   = color.New(color.FgHiMagenta)
	cakeColor    = color.New(color.FgMagenta)
	meterColors  = []*color.Color{color.New(color.FgGreen), color.New(color.FgYellow), color.New(color.FgRed)}
	headingColor = color.New(color.FgCyan, color.Bold)
)

const meterWidth = 30

// Render draws the cake and the live intensity meter.
func (c *Cake) Render(w io.Writer, intensity float64, detecting bool) {
	c.mu.Lock()
	lit := append([]bool(nil), c.lit...)
	remaining := c.remaining
	c.mu.Unlock()

	width := max(len(lit)*4+3, 12)

	var flames strings.Builder
	flames.WriteString("  ")
	for _, on := range lit {
		if on {
			flames.WriteString(flameColor.Sprint(" )  "))
		} else {
			flames.WriteString(smokeColor.Sprint(" ~  "))
		}
	}
	fmt.Fprintln(w, flames.String())
	fmt.Fprintln(w, "  "+candleColor.Sprint(strings.Repeat(" |  ", len(lit))))
	fmt.Fprintln(w, " "+frostColor.Sprint(strings.Repeat("~", width)))
	fmt.Fprintln(w, " "+cakeColor.Sprint("|"+strings.Repeat(" ", width-2)+"|"))
	fmt.Fprintln(w, " "+cakeColor.Sprint("+"+strings.Repeat("-", width-2)+"+"))

	fmt.Fprintf(w, "\n %d of %d candles lit\n", remaining, len(lit))
	if !detecting {
		fmt.Fprintln(w, " Listening is off")
		return
	}
	fmt.Fprintf(w, " Blow! %s %3.0f%%\n", meter(intensity), intensity)
}

func meter(intensity float64) string {
	intensity = min(max(intensity, 0), 100)
	filled := int(intensity / 100 * meterWidth)
	mc := meterColors[0]
	switch {
	case intensity > 75:
		mc = meterColors[2]
	case intensity > 50:
		mc = meterColors[1]
	}
	return "[" + mc.Sprint(strings.Repeat("#", filled)) + strings.Repeat(".", meterWidth-filled) + "]"
}

// RenderCelebration prints the birthday message shown once every candle is out.
func RenderCelebration(w io.Writer, name, message string) {
	fmt.Fprintln(w)
	if name != "" {
		headingColor.Fprintf(w, " 🎉 Happy Birthday, %s! 🎉\n", name)
	} else {
		headingColor.Fprintln(w, " 🎉 Happy Birthday! 🎉")
	}
	if message != "" {
		fmt.Fprintf(w, "\n %s\n", message)
	}
	fmt.Fprintln(w, "\n All candles are out. Make a wish!")
}
