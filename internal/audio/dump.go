package audio

import (
	"fmt"
	"sync/atomic"

	"github.com/dooshek/candleblow/internal/logger"
	"github.com/dooshek/candleblow/pkg/wav"
)

// Chunks buffered between the capture callback and the dump writer
const dumpQueue = 256

// dumper writes captured audio to a WAV file off the capture callback.
// Chunks are dropped when the writer falls behind.
type dumper struct {
	path    string
	w       *wav.FileWriter
	chunks  chan []byte
	done    chan struct{}
	dropped atomic.Int64
	err     error // owned by run until done is closed
}

func newDumper(path string, channels, rate int) (*dumper, error) {
	w, err := wav.Create(path, channels, rate)
	if err != nil {
		return nil, fmt.Errorf("failed to create session dump: %w", err)
	}
	d := &dumper{
		path:   path,
		w:      w,
		chunks: make(chan []byte, dumpQueue),
		done:   make(chan struct{}),
	}
	go d.run()
	return d, nil
}

// write queues a copy of b. It never blocks.
func (d *dumper) write(b []byte) {
	chunk := append([]byte(nil), b...)
	select {
	case d.chunks <- chunk:
	default:
		d.dropped.Add(1)
	}
}

func (d *dumper) run() {
	defer close(d.done)
	for chunk := range d.chunks {
		if d.err != nil {
			continue
		}
		if _, err := d.w.Write(chunk); err != nil {
			d.err = err
		}
	}
}

// close drains the queue and finalizes the file. write must not be called
// after close.
func (d *dumper) close() error {
	close(d.chunks)
	<-d.done

	if n := d.dropped.Load(); n > 0 {
		logger.Warnf("Session dump dropped %d chunks, disk too slow", n)
	}
	if err := d.w.Close(); err != nil {
		return fmt.Errorf("failed to write session dump: %w", err)
	}
	if d.err != nil {
		return fmt.Errorf("failed to write session dump: %w", d.err)
	}
	logger.Infof("💾 Session audio saved to %s", d.path)
	return nil
}
