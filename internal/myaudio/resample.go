package myaudio

import "github.com/MadBale/Mewsage-project/internal/errors"

// ResampleAudio resamples the given audio slice from the original sample
// rate to the target sample rate using cubic interpolation.
func ResampleAudio(samples []float32, originalRate, targetRate int) ([]float32, error) {
	if originalRate <= 0 || targetRate <= 0 {
		return nil, errors.Newf("invalid sample rates: %d -> %d", originalRate, targetRate).
			Component("myaudio").
			Category(errors.CategoryInvalidAudio).
			Build()
	}
	if originalRate == targetRate {
		return samples, nil
	}
	if len(samples) < 4 {
		return nil, errors.Newf("audio too short to resample: %d samples", len(samples)).
			Component("myaudio").
			Category(errors.CategoryInvalidAudio).
			Build()
	}

	ratio := float64(targetRate) / float64(originalRate)
	newLength := int(float64(len(samples)) * ratio)
	resampled := make([]float32, newLength)

	lastIndex := len(samples) - 3

	for i := 0; i < newLength; i++ {
		origPos := float64(i) / ratio
		index := int(origPos)

		// Clamp index to keep the four-point stencil in bounds
		if index < 1 {
			index = 1
		} else if index > lastIndex {
			index = lastIndex
		}

		frac := float32(origPos) - float32(index)

		y0, y1, y2, y3 := samples[index-1], samples[index], samples[index+1], samples[index+2]
		mu2 := frac * frac
		a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
		a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
		a2 := -0.5*y0 + 0.5*y2
		a3 := y1

		resampled[i] = a0*frac*mu2 + a1*mu2 + a2*frac + a3
	}

	return resampled, nil
}
