package blow

// Trigger debounces the smoothed intensity into discrete blow events. A blow
// fires once the intensity has stayed above the threshold for the required
// number of consecutive frames; the count then starts over, so a long breath
// yields one event per window.
type Trigger struct {
	threshold   float64
	required    int
	consecutive int
}

func NewTrigger(threshold float64, required int) *Trigger {
	if required < 1 {
		required = 1
	}
	return &Trigger{threshold: threshold, required: required}
}

// Observe feeds one frame's intensity and reports whether a blow fired.
func (t *Trigger) Observe(intensity float64) bool {
	if intensity <= t.threshold {
		t.consecutive = 0
		return false
	}
	t.consecutive++
	if t.consecutive >= t.required {
		t.consecutive = 0
		return true
	}
	return false
}

// Consecutive returns the current run of qualifying frames.
func (t *Trigger) Consecutive() int {
	return t.consecutive
}

func (t *Trigger) Reset() {
	t.consecutive = 0
}
