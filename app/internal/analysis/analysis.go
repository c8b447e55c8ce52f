// Package analysis turns one window of raw accelerometer samples into the
// spectral features used by the alarm state machine.
package analysis

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"osdbridge/app/internal/models"
)

const (
	// ScaleFactor divides every stored power value
	ScaleFactor = 1000
	// SimpleSpecBins is the number of 1 Hz bins in the simplified spectrum
	SimpleSpecBins = 10
)

var (
	ErrEmptyWindow   = errors.New("analysis: empty sample window")
	ErrBadResolution = errors.New("analysis: window does not support configured frequency band")
)

// Params are the frequency parameters for one analysis pass
type Params struct {
	SampleFreq   float64
	AlarmFreqMin float64
	AlarmFreqMax float64
	FreqCutoff   float64
}

// Analyze computes specPower, roiPower, roiRatio and the simplified
// spectrum for a window. Powers are truncated toward zero after scaling.
// The ratio is computed from the truncated values and is zero when
// specPower is zero.
func Analyze(samples []int, p Params) (models.AnalysisResult, error) {
	var res models.AnalysisResult

	n := len(samples)
	if n == 0 {
		return res, ErrEmptyWindow
	}
	if p.SampleFreq <= 0 {
		return res, fmt.Errorf("%w: sample frequency %v", ErrBadResolution, p.SampleFreq)
	}

	freqRes := p.SampleFreq / float64(n)
	nMin := int(p.AlarmFreqMin / freqRes)
	nMax := int(p.AlarmFreqMax / freqRes)
	nCutoff := int(p.FreqCutoff / freqRes)
	if nMax <= nMin || nMax > n/2 {
		return res, fmt.Errorf("%w: n=%d fs=%v band=[%v,%v] bins=[%d,%d)",
			ErrBadResolution, n, p.SampleFreq, p.AlarmFreqMin, p.AlarmFreqMax, nMin, nMax)
	}

	seq := make([]float64, n)
	for i, v := range samples {
		seq[i] = float64(v)
	}
	coeff := fourier.NewFFT(n).Coefficients(nil, seq)

	// Squared magnitudes. Bins above the cutoff are zeroed so that the
	// region of interest and simplified spectrum never see them.
	mag := make([]float64, len(coeff))
	for i, c := range coeff {
		mag[i] = real(c)*real(c) + imag(c)*imag(c)
	}
	specPower := 0.0
	for i := 1; i < n/2; i++ {
		if i <= nCutoff {
			specPower += mag[i]
		} else {
			mag[i] = 0
		}
	}
	specPower = specPower / float64(n) / 2

	roiPower := floats.Sum(mag[nMin:nMax]) / float64(nMax-nMin)

	res.SpecPower = int64(specPower) / ScaleFactor
	res.RoiPower = int64(roiPower) / ScaleFactor
	if res.SpecPower != 0 {
		res.RoiRatio = 10 * float64(res.RoiPower) / float64(res.SpecPower)
	}
	res.SimpleSpec = simpleSpectrum(mag, freqRes)
	return res, nil
}

// simpleSpectrum averages the squared magnitudes into 1 Hz bins,
// skipping the DC bin.
func simpleSpectrum(mag []float64, freqRes float64) []int64 {
	spec := make([]int64, SimpleSpecBins)
	for f := 0; f < SimpleSpecBins; f++ {
		binMin := int(1 + float64(f)/freqRes)
		binMax := int(1 + float64(f+1)/freqRes)
		if binMax > len(mag) {
			binMax = len(mag)
		}
		if binMax <= binMin {
			continue
		}
		spec[f] = int64(floats.Sum(mag[binMin:binMax])/float64(binMax-binMin)) / ScaleFactor
	}
	return spec
}
