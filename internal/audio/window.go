package audio

import (
	"sync"

	"github.com/smallnest/ringbuffer"
)

// Window is the analyser between a capture callback and the frame loop.
// The capture side pushes PCM16 bytes as they arrive; each frame reads the
// most recent size samples. When the frame loop falls behind, the oldest
// pending audio is dropped.
type Window struct {
	mu      sync.Mutex
	rb      *ringbuffer.RingBuffer
	history []byte // latest size samples, oldest first
	filled  int    // valid bytes at the end of history
	scratch []byte
}

// NewWindow creates a window holding size samples of PCM16 mono audio.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = 1024
	}
	capacity := size * 2 * 4
	return &Window{
		rb:      ringbuffer.New(capacity),
		history: make([]byte, size*2),
		scratch: make([]byte, capacity),
	}
}

// Size returns the window length in samples.
func (w *Window) Size() int {
	return len(w.history) / 2
}

// Write queues captured PCM16 bytes. A trailing odd byte is discarded.
func (w *Window) Write(pcm []byte) {
	pcm = pcm[:len(pcm)&^1]
	if len(pcm) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	capacity := w.rb.Capacity()
	if len(pcm) > capacity {
		pcm = pcm[len(pcm)-capacity:]
	}
	if free := w.rb.Free(); free < len(pcm) {
		// Drop the oldest pending audio to make room
		_, _ = w.rb.Read(w.scratch[:len(pcm)-free])
	}
	_, _ = w.rb.Write(pcm)
}

// Samples drains pending audio into the window and copies its latest
// samples, normalized to [-1,1], into dst.
func (w *Window) Samples(dst []float64) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if pending := w.rb.Length(); pending > 0 {
		n, _ := w.rb.Read(w.scratch[:pending])
		w.push(w.scratch[:n])
	}

	count := w.filled / 2
	if count > len(dst) {
		count = len(dst)
	}
	start := len(w.history) - count*2
	return NormalizePCM16(dst[:count], w.history[start:])
}

func (w *Window) push(data []byte) {
	size := len(w.history)
	if len(data) >= size {
		copy(w.history, data[len(data)-size:])
		w.filled = size
		return
	}
	copy(w.history, w.history[len(data):])
	copy(w.history[size-len(data):], data)
	w.filled += len(data)
	if w.filled > size {
		w.filled = size
	}
}

// Reset discards all buffered audio.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rb.Reset()
	w.filled = 0
}
