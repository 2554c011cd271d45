package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
)

// PCM is mono 16-bit audio.
type PCM struct {
	Samples    []int16
	SampleRate int
}

// Bytes returns the samples as little-endian PCM16.
func (p *PCM) Bytes() []byte {
	out := make([]byte, len(p.Samples)*2)
	for i, s := range p.Samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// Encode writes little-endian PCM16 data as a WAV stream.
func Encode(w io.WriteSeeker, pcmData []byte, channels int, sampleRate int) error {
	data := make([]int, len(pcmData)/2)
	for i := range data {
		data[i] = int(int16(binary.LittleEndian.Uint16(pcmData[2*i:])))
	}

	enc := gowav.NewEncoder(w, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav file: %w", err)
	}
	return nil
}

// WriteFile writes little-endian PCM16 data to a WAV file at path.
func WriteFile(path string, pcmData []byte, channels int, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}
	if err := Encode(f, pcmData, channels, sampleRate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// FileWriter streams PCM16 chunks into a WAV file. The header sizes are
// written on Close.
type FileWriter struct {
	f      *os.File
	enc    *gowav.Encoder
	format *audio.Format
}

// Create opens path for streaming PCM16 audio.
func Create(path string, channels int, sampleRate int) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav file: %w", err)
	}
	return &FileWriter{
		f:      f,
		enc:    gowav.NewEncoder(f, sampleRate, 16, channels, 1),
		format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
	}, nil
}

// Write appends little-endian PCM16 data. A trailing odd byte is ignored.
func (w *FileWriter) Write(pcmData []byte) (int, error) {
	data := make([]int, len(pcmData)/2)
	for i := range data {
		data[i] = int(int16(binary.LittleEndian.Uint16(pcmData[2*i:])))
	}
	buf := &audio.IntBuffer{Format: w.format, Data: data, SourceBitDepth: 16}
	if err := w.enc.Write(buf); err != nil {
		return 0, fmt.Errorf("failed to write wav data: %w", err)
	}
	return len(pcmData), nil
}

// Close finalizes the header and closes the file.
func (w *FileWriter) Close() error {
	if err := w.enc.Close(); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to finalize wav file: %w", err)
	}
	return w.f.Close()
}

// Decode reads a WAV stream and downmixes it to mono 16-bit samples.
func Decode(r io.ReadSeeker) (*PCM, error) {
	dec := gowav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid wav file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav data: %w", err)
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	depth := int(dec.BitDepth)

	frames := len(buf.Data) / channels
	samples := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < channels; c++ {
			sum += to16(buf.Data[i*channels+c], depth)
		}
		samples[i] = int16(sum / channels)
	}

	return &PCM{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// ReadFile decodes the WAV file at path.
func ReadFile(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// to16 rescales a sample of the given bit depth to the int16 range.
func to16(v int, depth int) int {
	switch depth {
	case 8:
		// 8-bit WAV is unsigned around 128
		return (v - 128) << 8
	case 24:
		return v >> 8
	case 32:
		return v >> 16
	default:
		return v
	}
}
