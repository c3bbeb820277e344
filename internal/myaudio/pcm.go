package myaudio

import (
	"encoding/binary"

	"github.com/MadBale/Mewsage-project/internal/errors"
)

// DecodeRawPCM interprets data as little-endian signed 16-bit mono PCM
// and converts it to float32 in [-1, 1).
func DecodeRawPCM(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, errors.Newf("empty PCM payload").
			Component("myaudio").
			Category(errors.CategoryInvalidAudio).
			Build()
	}
	if len(data)%2 != 0 {
		return nil, errors.Newf("PCM payload length %d is not a whole number of 16-bit samples", len(data)).
			Component("myaudio").
			Category(errors.CategoryInvalidAudio).
			Build()
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		sample := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples, nil
}
