package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dooshek/candleblow/internal/logger"
	"github.com/dooshek/candleblow/internal/types"
	"github.com/dooshek/candleblow/pkg/wav"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Replay feeds audio in slices of this length, paced to wall-clock time
const replayChunk = 10 * time.Millisecond

// Lowest rate that still fills a replay chunk with at least one sample
const minReplayRate = int(time.Second / replayChunk)

var ErrFFmpegNotInstalled = errors.New("FFmpeg is not installed. Please install FFmpeg to replay non-WAV recordings")

func init() {
	ffmpeg.LogCompiledCommand = false
}

func checkFFmpegInstalled() error {
	if err := exec.Command("ffmpeg", "-version").Run(); err != nil {
		return ErrFFmpegNotInstalled
	}
	return nil
}

// FileSource replays a recording as if it were a live microphone. WAV files
// are decoded directly; anything else goes through ffmpeg. The end of the
// file ends the session with ErrStreamEnded.
type FileSource struct {
	path string
	cfg  types.CaptureConfig
}

func NewFileSource(path string, cfg types.CaptureConfig) *FileSource {
	return &FileSource{path: path, cfg: cfg.WithDefaults()}
}

type fileSession struct {
	*stream
	cancel context.CancelFunc
	wg     sync.WaitGroup
	cmd    *exec.Cmd
}

func (f *FileSource) Open(ctx context.Context) (Session, error) {
	if _, err := os.Stat(f.path); err != nil {
		if os.IsNotExist(err) {
			return nil, &DeviceError{Kind: NoDevice, Err: err}
		}
		return nil, classifyDeviceError(err)
	}

	var (
		r    io.Reader
		rate int
		cmd  *exec.Cmd
	)
	if strings.EqualFold(filepath.Ext(f.path), ".wav") {
		pcm, err := wav.ReadFile(f.path)
		if err != nil {
			return nil, &DeviceError{Kind: Unsupported, Err: err}
		}
		if err := checkReplayRate(pcm.SampleRate); err != nil {
			return nil, err
		}
		r, rate = bytes.NewReader(pcm.Bytes()), pcm.SampleRate
	} else {
		if err := checkReplayRate(f.cfg.SampleRate); err != nil {
			return nil, err
		}
		if err := checkFFmpegInstalled(); err != nil {
			return nil, &DeviceError{Kind: Unsupported, Err: err}
		}
		var err error
		cmd, r, err = f.startDecoder()
		if err != nil {
			return nil, &DeviceError{Kind: Unsupported, Err: err}
		}
		rate = f.cfg.SampleRate
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &fileSession{cancel: cancel, cmd: cmd}
	s.stream = newStream(f.cfg.WindowSize, s.release)

	s.wg.Add(1)
	go s.pump(loopCtx, r, rate)

	logger.Debugf("Replaying %s at %d Hz", f.path, rate)
	return s, nil
}

func checkReplayRate(rate int) error {
	if rate < minReplayRate {
		return &DeviceError{Kind: Unsupported, Err: fmt.Errorf("sample rate %d Hz is below %d Hz", rate, minReplayRate)}
	}
	return nil
}

// startDecoder runs ffmpeg to convert the input to mono s16le on stdout.
func (f *FileSource) startDecoder() (*exec.Cmd, io.Reader, error) {
	cmd := ffmpeg.Input(f.path).
		Output("pipe:1", ffmpeg.KwArgs{
			"loglevel": "quiet",
			"f":        "s16le",
			"acodec":   "pcm_s16le",
			"ac":       "1",
			"ar":       strconv.Itoa(f.cfg.SampleRate),
		}).
		Compile()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open ffmpeg output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	return cmd, stdout, nil
}

func (s *fileSession) pump(ctx context.Context, r io.Reader, rate int) {
	defer s.wg.Done()

	chunk := make([]byte, rate*int(replayChunk/time.Millisecond)/1000*2)
	ticker := time.NewTicker(replayChunk)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := io.ReadFull(r, chunk)
		if n > 0 {
			s.window.Write(chunk[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				s.end(ErrStreamEnded)
			} else {
				s.end(fmt.Errorf("replay read failed: %w", err))
			}
			return
		}
	}
}

func (s *fileSession) release() error {
	s.cancel()
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.wg.Wait()
	if s.cmd != nil {
		_ = s.cmd.Wait()
	}
	return nil
}
