// Package melspec computes log-mel spectrogram feature tensors from mono
// audio for the cat sound models.
package melspec

import (
	"math"

	"github.com/MadBale/Mewsage-project/internal/errors"
)

// Tensor is a batch-of-one feature tensor laid out as
// [1][Frames][Mels][1], flattened frame-major.
type Tensor struct {
	Data   []float32
	Frames int
	Mels   int
}

// Config controls the spectrogram geometry.
type Config struct {
	SampleRate int
	NumMels    int
	FFTSize    int
	HopLength  int
	NumFrames  int
}

// Extractor converts waveforms into fixed-size log-mel tensors. The FFT
// window and mel filterbank are precomputed, so a single Extractor can be
// shared across goroutines.
type Extractor struct {
	cfg    Config
	window []float64
	bank   [][]float64
}

// New creates an Extractor for the given geometry. FFTSize must be a
// power of two.
func New(cfg Config) *Extractor {
	return &Extractor{
		cfg:    cfg,
		window: hannWindow(cfg.FFTSize),
		bank:   melFilterBank(cfg.NumMels, cfg.FFTSize, float64(cfg.SampleRate), float64(cfg.SampleRate)/2.0),
	}
}

// Extract computes the feature tensor for a mono waveform. The same input
// always produces the same output.
//
// Digitally silent input is rejected as invalid audio rather than
// normalized. A zero-variance spectrogram would turn into NaNs under
// z-scoring, and the tensor contract guarantees finite values only.
func (e *Extractor) Extract(samples []float32) (*Tensor, error) {
	if len(samples) == 0 {
		return nil, errors.Newf("no audio samples to extract features from").
			Component("melspec").
			Category(errors.CategoryInvalidAudio).
			Build()
	}

	mel := e.melSpectrogram(samples)
	powerToDB(mel)
	frames := fitFrames(mel, e.cfg.NumFrames)

	// frames is [time][mel], flattened into the model input layout
	out := make([]float32, e.cfg.NumFrames*e.cfg.NumMels)
	var sum, sumSq float64
	for t, row := range frames {
		for m, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.Newf("non-finite value in spectrogram at frame %d band %d", t, m).
					Component("melspec").
					Category(errors.CategoryInvalidAudio).
					Build()
			}
			sum += v
			sumSq += v * v
		}
	}

	n := float64(len(out))
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 1e-12 {
		return nil, errors.Newf("zero-variance spectrogram, audio is constant or silent").
			Component("melspec").
			Category(errors.CategoryInvalidAudio).
			Build()
	}
	std := math.Sqrt(variance)

	for t, row := range frames {
		for m, v := range row {
			out[t*e.cfg.NumMels+m] = float32((v - mean) / std)
		}
	}

	return &Tensor{Data: out, Frames: e.cfg.NumFrames, Mels: e.cfg.NumMels}, nil
}

// melSpectrogram returns the mel power spectrogram as [time][mel].
func (e *Extractor) melSpectrogram(samples []float32) [][]float64 {
	fftSize := e.cfg.FFTSize
	hop := e.cfg.HopLength
	pad := fftSize / 2
	numBins := fftSize/2 + 1

	padded := reflectPad(samples, pad)
	numFrames := 1 + len(samples)/hop

	re := make([]float64, fftSize)
	im := make([]float64, fftSize)
	power := make([]float64, numBins)

	mel := make([][]float64, numFrames)
	for t := 0; t < numFrames; t++ {
		start := t * hop
		for i := 0; i < fftSize; i++ {
			re[i] = padded[start+i] * e.window[i]
			im[i] = 0
		}
		fft(re, im)
		for k := 0; k < numBins; k++ {
			power[k] = re[k]*re[k] + im[k]*im[k]
		}

		row := make([]float64, e.cfg.NumMels)
		for m, filter := range e.bank {
			var acc float64
			for k, w := range filter {
				if w != 0 {
					acc += w * power[k]
				}
			}
			row[m] = acc
		}
		mel[t] = row
	}
	return mel
}

// reflectPad mirrors pad samples around each edge of the signal. Signals
// shorter than the pad width reflect back and forth as needed.
func reflectPad(samples []float32, pad int) []float64 {
	n := len(samples)
	out := make([]float64, n+2*pad)
	for i := range out {
		idx := i - pad
		// fold the index into [0, n) by reflection
		for idx < 0 || idx >= n {
			if idx < 0 {
				idx = -idx
			}
			if idx >= n {
				idx = 2*(n-1) - idx
			}
			if n == 1 {
				idx = 0
			}
		}
		out[i] = float64(samples[idx])
	}
	return out
}

const (
	dbAmin  = 1e-10
	dbTopDB = 80.0
)

// powerToDB converts a power spectrogram to decibels in place, referenced
// to the spectrogram maximum and floored at max minus topDB.
func powerToDB(mel [][]float64) {
	ref := dbAmin
	for _, row := range mel {
		for _, v := range row {
			if v > ref {
				ref = v
			}
		}
	}
	refDB := 10.0 * math.Log10(ref)

	maxDB := math.Inf(-1)
	for _, row := range mel {
		for m, v := range row {
			if v < dbAmin {
				v = dbAmin
			}
			db := 10.0*math.Log10(v) - refDB
			row[m] = db
			if db > maxDB {
				maxDB = db
			}
		}
	}

	floor := maxDB - dbTopDB
	for _, row := range mel {
		for m, v := range row {
			if v < floor {
				row[m] = floor
			}
		}
	}
}

// fitFrames truncates or right-pads the time axis to exactly want frames.
// Padding replicates the last frame.
func fitFrames(mel [][]float64, want int) [][]float64 {
	if len(mel) >= want {
		return mel[:want]
	}
	out := make([][]float64, want)
	copy(out, mel)
	last := mel[len(mel)-1]
	for i := len(mel); i < want; i++ {
		row := make([]float64, len(last))
		copy(row, last)
		out[i] = row
	}
	return out
}
