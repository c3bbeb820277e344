package myaudio

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MadBale/Mewsage-project/internal/conf"
	"github.com/MadBale/Mewsage-project/internal/errors"
)

// makeWAV builds a minimal 16-bit PCM RIFF container around the given
// interleaved samples.
func makeWAV(t *testing.T, sampleRate, channels int, samples []int16) []byte {
	t.Helper()

	var data bytes.Buffer
	for _, s := range samples {
		require.NoError(t, binary.Write(&data, binary.LittleEndian, s))
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len())))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(16)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(1))) // PCM
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(channels)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(sampleRate)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*2)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(channels*2)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(16)))
	buf.WriteString("data")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(data.Len())))
	buf.Write(data.Bytes())
	return buf.Bytes()
}

func TestDecodeFileMonoWAV(t *testing.T) {
	t.Parallel()

	wavBytes := makeWAV(t, conf.FileSampleRate, 1, []int16{0, 16384, -16384, 32767})
	samples, err := DecodeFile(wavBytes, "test.wav")
	require.NoError(t, err)
	require.Len(t, samples, 4)

	assert.InDelta(t, 0.0, samples[0], 1e-6)
	assert.InDelta(t, 0.5, samples[1], 1e-6)
	assert.InDelta(t, -0.5, samples[2], 1e-6)
	assert.InDelta(t, 32767.0/32768.0, samples[3], 1e-6)
}

func TestDecodeFileStereoDownmix(t *testing.T) {
	t.Parallel()

	// L/R pairs average into one mono sample per frame
	wavBytes := makeWAV(t, conf.FileSampleRate, 2, []int16{16384, -16384, 8192, 8192})
	samples, err := DecodeFile(wavBytes, "stereo.wav")
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.InDelta(t, 0.0, samples[0], 1e-6)
	assert.InDelta(t, 0.25, samples[1], 1e-6)
}

func TestDecodeFileResamples(t *testing.T) {
	t.Parallel()

	src := make([]int16, 44100)
	for i := range src {
		src[i] = int16(i % 1000)
	}
	wavBytes := makeWAV(t, 44100, 1, src)
	samples, err := DecodeFile(wavBytes, "cd.wav")
	require.NoError(t, err)

	// one second of audio should come out at the file-mode rate
	assert.InDelta(t, conf.FileSampleRate, len(samples), 2)
}

func TestDecodeFileRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := DecodeFile([]byte("not audio at all"), "noise.txt")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryInvalidAudio))

	_, err = DecodeFile(nil, "empty.wav")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryInvalidAudio))

	// fLaC magic with a truncated stream
	_, err = DecodeFile([]byte("fLaC\x00\x00\x00\x00"), "broken.flac")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryInvalidAudio))
}

func TestDecodeRawPCM(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	for _, s := range []int16{0, 16384, -32768} {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, s))
	}

	samples, err := DecodeRawPCM(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.InDelta(t, 0.0, samples[0], 1e-6)
	assert.InDelta(t, 0.5, samples[1], 1e-6)
	assert.InDelta(t, -1.0, samples[2], 1e-6)
}

func TestDecodeRawPCMRejectsBadPayloads(t *testing.T) {
	t.Parallel()

	_, err := DecodeRawPCM(nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryInvalidAudio))

	_, err = DecodeRawPCM([]byte{0x01, 0x02, 0x03})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryInvalidAudio))
}

func TestResampleAudio(t *testing.T) {
	t.Parallel()

	src := make([]float32, 48000)
	for i := range src {
		src[i] = float32(i) / 48000.0
	}

	out, err := ResampleAudio(src, conf.RealtimeSampleRate, conf.FileSampleRate)
	require.NoError(t, err)
	assert.InDelta(t, conf.FileSampleRate, len(out), 2)

	// same rate is a passthrough
	same, err := ResampleAudio(src, 48000, 48000)
	require.NoError(t, err)
	assert.Equal(t, len(src), len(same))

	_, err = ResampleAudio([]float32{1, 2}, 48000, 22050)
	require.Error(t, err)

	_, err = ResampleAudio(src, 0, 22050)
	require.Error(t, err)
}
