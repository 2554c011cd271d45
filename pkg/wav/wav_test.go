package wav

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenReadFile(t *testing.T) {
	samples := make([]int16, 4800)
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/48000))
	}
	pcm := &PCM{Samples: samples, SampleRate: 48000}

	path := filepath.Join(t.TempDir(), "dump.wav")
	require.NoError(t, WriteFile(path, pcm.Bytes(), 1, 48000))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 48000, got.SampleRate)
	assert.Equal(t, samples, got.Samples)
}

func TestFileWriterStreamsChunks(t *testing.T) {
	samples := make([]int16, 3000)
	for i := range samples {
		samples[i] = int16(i - 1500)
	}
	data := (&PCM{Samples: samples}).Bytes()

	path := filepath.Join(t.TempDir(), "stream.wav")
	w, err := Create(path, 1, 16000)
	require.NoError(t, err)
	for off := 0; off < len(data); off += 1000 {
		n, err := w.Write(data[off:min(off+1000, len(data))])
		require.NoError(t, err)
		assert.Equal(t, min(1000, len(data)-off), n)
	}
	require.NoError(t, w.Close())

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, got.SampleRate)
	assert.Equal(t, samples, got.Samples)
}

func TestReadFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not riff data"), 0o644))

	_, err := ReadFile(path)
	assert.Error(t, err)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestTo16(t *testing.T) {
	assert.Equal(t, 0, to16(128, 8))
	assert.Equal(t, -128<<8, to16(0, 8))
	assert.Equal(t, 100, to16(100<<8, 24))
	assert.Equal(t, -5, to16(-5, 16))
}
