// Package myaudio decodes uploaded audio into mono float32 waveforms at
// the sample rate the feature extractor expects.
package myaudio

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/flac"

	"github.com/MadBale/Mewsage-project/internal/conf"
	"github.com/MadBale/Mewsage-project/internal/errors"
)

// AudioInfo holds the container properties of a decoded file.
type AudioInfo struct {
	SampleRate  int
	NumChannels int
	BitDepth    int
}

func getAudioDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, errors.Newf("unsupported bit depth: %d", bitDepth).
			Component("myaudio").
			Category(errors.CategoryInvalidAudio).
			Build()
	}
}

// DecodeFile decodes a WAV or FLAC container into a mono waveform at
// conf.FileSampleRate. Stereo is downmixed by averaging channels and
// other sample rates are resampled with cubic interpolation.
func DecodeFile(data []byte, filename string) ([]float32, error) {
	if len(data) == 0 {
		return nil, errors.Newf("empty audio payload").
			Component("myaudio").
			Category(errors.CategoryInvalidAudio).
			Context("filename", filename).
			Build()
	}

	var (
		samples []float32
		info    AudioInfo
		err     error
	)
	switch {
	case bytes.HasPrefix(data, []byte("fLaC")):
		samples, info, err = decodeFLAC(data)
	case bytes.HasPrefix(data, []byte("RIFF")), strings.HasSuffix(strings.ToLower(filename), ".wav"):
		samples, info, err = decodeWAV(data)
	default:
		return nil, errors.Newf("unrecognized audio container in %s", filename).
			Component("myaudio").
			Category(errors.CategoryInvalidAudio).
			Context("filename", filename).
			Build()
	}
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, errors.Newf("audio file %s contains no samples", filename).
			Component("myaudio").
			Category(errors.CategoryInvalidAudio).
			Context("filename", filename).
			Build()
	}

	if info.SampleRate != conf.FileSampleRate {
		samples, err = ResampleAudio(samples, info.SampleRate, conf.FileSampleRate)
		if err != nil {
			return nil, err
		}
	}
	return samples, nil
}

func decodeWAV(data []byte) ([]float32, AudioInfo, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, AudioInfo{}, errors.Newf("input is not a valid WAV audio file").
			Component("myaudio").
			Category(errors.CategoryInvalidAudio).
			Build()
	}

	info := AudioInfo{
		SampleRate:  int(decoder.SampleRate),
		NumChannels: int(decoder.NumChans),
		BitDepth:    int(decoder.BitDepth),
	}
	if info.NumChannels != 1 && info.NumChannels != 2 {
		return nil, AudioInfo{}, errors.Newf("unsupported number of channels: %d", info.NumChannels).
			Component("myaudio").
			Category(errors.CategoryInvalidAudio).
			Build()
	}
	divisor, err := getAudioDivisor(info.BitDepth)
	if err != nil {
		return nil, AudioInfo{}, err
	}

	var samples []float32
	buf := &audio.IntBuffer{
		Data:   make([]int, 16384),
		Format: &audio.Format{SampleRate: info.SampleRate, NumChannels: info.NumChannels},
	}
	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return nil, AudioInfo{}, errors.New(err).
				Component("myaudio").
				Category(errors.CategoryInvalidAudio).
				Build()
		}
		if n == 0 {
			break
		}
		frames := buf.Data[:n]
		if info.NumChannels == 2 {
			for i := 0; i+1 < len(frames); i += 2 {
				left := float32(frames[i]) / divisor
				right := float32(frames[i+1]) / divisor
				samples = append(samples, (left+right)/2)
			}
		} else {
			for _, s := range frames {
				samples = append(samples, float32(s)/divisor)
			}
		}
	}
	return samples, info, nil
}

func decodeFLAC(data []byte) ([]float32, AudioInfo, error) {
	decoder, err := flac.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, AudioInfo{}, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryInvalidAudio).
			Build()
	}

	info := AudioInfo{
		SampleRate:  decoder.SampleRate,
		NumChannels: decoder.NChannels,
		BitDepth:    decoder.BitsPerSample,
	}
	if info.NumChannels != 1 && info.NumChannels != 2 {
		return nil, AudioInfo{}, errors.Newf("unsupported number of channels: %d", info.NumChannels).
			Component("myaudio").
			Category(errors.CategoryInvalidAudio).
			Build()
	}
	divisor, err := getAudioDivisor(info.BitDepth)
	if err != nil {
		return nil, AudioInfo{}, err
	}

	bytesPerSample := info.BitDepth / 8
	frameStride := bytesPerSample * info.NumChannels

	var samples []float32
	for {
		frame, err := decoder.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, AudioInfo{}, errors.New(err).
				Component("myaudio").
				Category(errors.CategoryInvalidAudio).
				Build()
		}

		for i := 0; i+frameStride <= len(frame); i += frameStride {
			var acc float32
			for ch := 0; ch < info.NumChannels; ch++ {
				off := i + ch*bytesPerSample
				var sample int32
				switch info.BitDepth {
				case 16:
					sample = int32(int16(binary.LittleEndian.Uint16(frame[off:])))
				case 24:
					sample = int32(frame[off]) | int32(frame[off+1])<<8 | int32(frame[off+2])<<16
					if sample&0x800000 != 0 {
						sample |= ^int32(0xFFFFFF)
					}
				case 32:
					sample = int32(binary.LittleEndian.Uint32(frame[off:]))
				}
				acc += float32(sample) / divisor
			}
			samples = append(samples, acc/float32(info.NumChannels))
		}
	}
	return samples, info, nil
}
