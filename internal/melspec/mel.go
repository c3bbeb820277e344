package melspec

import "math"

// Slaney-style mel scale: linear below 1 kHz, logarithmic above.
const (
	melBreakHz  = 1000.0
	melLinearSp = 200.0 / 3.0
	melBreakMel = melBreakHz / melLinearSp
)

func hzToMel(hz float64) float64 {
	if hz < melBreakHz {
		return hz / melLinearSp
	}
	return melBreakMel + math.Log(hz/melBreakHz)*27.0/math.Log(6.4)
}

func melToHz(mel float64) float64 {
	if mel < melBreakMel {
		return mel * melLinearSp
	}
	return melBreakHz * math.Exp(math.Log(6.4)/27.0*(mel-melBreakMel))
}

// melFilterBank builds numMels triangular filters spanning 0..maxHz over
// fftSize/2+1 spectrum bins, area-normalized so each filter integrates to
// roughly constant energy per band.
func melFilterBank(numMels, fftSize int, sampleRate, maxHz float64) [][]float64 {
	numBins := fftSize/2 + 1

	melMin := hzToMel(0)
	melMax := hzToMel(maxHz)
	edges := make([]float64, numMels+2)
	for i := range edges {
		mel := melMin + (melMax-melMin)*float64(i)/float64(numMels+1)
		edges[i] = melToHz(mel)
	}

	binHz := make([]float64, numBins)
	for k := range binHz {
		binHz[k] = float64(k) * sampleRate / float64(fftSize)
	}

	bank := make([][]float64, numMels)
	for m := 0; m < numMels; m++ {
		lower, center, upper := edges[m], edges[m+1], edges[m+2]
		row := make([]float64, numBins)
		for k, hz := range binHz {
			var w float64
			switch {
			case hz <= lower || hz >= upper:
				continue
			case hz <= center:
				w = (hz - lower) / (center - lower)
			default:
				w = (upper - hz) / (upper - center)
			}
			row[k] = w
		}
		// Slaney area normalization
		enorm := 2.0 / (upper - lower)
		for k := range row {
			row[k] *= enorm
		}
		bank[m] = row
	}
	return bank
}
