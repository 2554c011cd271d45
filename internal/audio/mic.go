package audio

import (
	"context"
	"fmt"
	"strings"

	"github.com/dooshek/candleblow/internal/logger"
	"github.com/dooshek/candleblow/internal/types"
	"github.com/gen2brain/malgo"
)

const micChannels = 1

// MicSource captures the default (or a named) microphone through miniaudio.
// miniaudio delivers the raw device signal: no echo cancellation, noise
// suppression or gain control is applied.
type MicSource struct {
	cfg      types.CaptureConfig
	dumpPath string
}

// NewMicSource creates a microphone source. When dumpPath is set, each
// session's captured audio is streamed there as WAV and finalized on Close.
func NewMicSource(cfg types.CaptureConfig, dumpPath string) *MicSource {
	return &MicSource{cfg: cfg.WithDefaults(), dumpPath: dumpPath}
}

type micSession struct {
	*stream
	mctx   *malgo.AllocatedContext
	device *malgo.Device
	dump   *dumper
}

// Open initializes the capture device and starts streaming into a new session.
func (m *MicSource) Open(ctx context.Context) (Session, error) {
	if err := checkConstraints(m.cfg); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		logger.Error("Error initializing audio context", err)
		return nil, &DeviceError{Kind: Unsupported, Err: err}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = micChannels
	deviceConfig.SampleRate = uint32(m.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if m.cfg.Device != "" {
		info, err := findCaptureDevice(mctx, m.cfg.Device)
		if err != nil {
			freeContext(mctx)
			return nil, err
		}
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
		logger.Debugf("Using capture device: %s", info.Name())
	}

	s := &micSession{mctx: mctx}
	s.stream = newStream(m.cfg.WindowSize, s.release)
	if m.dumpPath != "" {
		s.dump, err = newDumper(m.dumpPath, micChannels, m.cfg.SampleRate)
		if err != nil {
			freeContext(mctx)
			return nil, err
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, inputBuffer []byte, _ uint32) {
			s.window.Write(inputBuffer)
			if s.dump != nil {
				s.dump.write(inputBuffer)
			}
		},
		Stop: func() {
			// Fires on unplug or backend failure; after Close, end is a no-op
			s.end(ErrStreamEnded)
		},
	})
	if err != nil {
		logger.Error("Error initializing capture device", err)
		_ = s.release()
		return nil, classifyDeviceError(err)
	}
	s.device = device

	if err := device.Start(); err != nil {
		logger.Error("Error starting capture device", err)
		_ = s.release()
		return nil, classifyDeviceError(err)
	}

	logger.Debugf("Microphone opened at %d Hz, window %d samples", m.cfg.SampleRate, m.cfg.WindowSize)
	return s, nil
}

// release stops the device before closing the dump so no callback writes
// after it.
func (s *micSession) release() error {
	if s.device != nil {
		s.device.Uninit()
	}
	freeContext(s.mctx)

	if s.dump == nil {
		return nil
	}
	return s.dump.close()
}

func freeContext(mctx *malgo.AllocatedContext) {
	if mctx == nil {
		return
	}
	_ = mctx.Uninit()
	mctx.Free()
}

func findCaptureDevice(mctx *malgo.AllocatedContext, name string) (malgo.DeviceInfo, error) {
	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceInfo{}, classifyDeviceError(err)
	}
	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(name)) {
			return info, nil
		}
	}
	return malgo.DeviceInfo{}, &DeviceError{Kind: NoDevice, Err: fmt.Errorf("no capture device matching %q", name)}
}

// ListCaptureDevices returns the names of the available capture devices.
func ListCaptureDevices() ([]string, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, &DeviceError{Kind: Unsupported, Err: err}
	}
	defer freeContext(mctx)

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, classifyDeviceError(err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}
