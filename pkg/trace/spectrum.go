// Following error spectrum using Welch's method
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package trace

import (
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

// Spectrum is a one-sided power spectral density.
type Spectrum struct {
	Freqs []float64
	PSD   []float64
}

// Peak returns the frequency with the highest power above minFreq.
func (s Spectrum) Peak(minFreq float64) (freq, power float64) {
	best := -1
	for i, f := range s.Freqs {
		if f < minFreq {
			continue
		}
		if best < 0 || s.PSD[i] > s.PSD[best] {
			best = i
		}
	}
	if best < 0 {
		return 0, 0
	}
	return s.Freqs[best], s.PSD[best]
}

// LagSpectrum computes the spectrum of the following error. nfft must be
// a power of two no larger than the trace; segments overlap by half.
func LagSpectrum(samples []Sample, period float64, nfft int) Spectrum {
	return welch(column(samples, func(s Sample) float64 { return s.Lag }), 1/period, nfft)
}

func welch(x []float64, fs float64, nfft int) Spectrum {
	if nfft < 2 || len(x) < nfft {
		return Spectrum{}
	}
	win := make([]float64, nfft)
	for i := range win {
		win[i] = 1
	}
	window.Hann(win)
	scale := 1 / floats.Dot(win, win)

	fft := fourier.NewFFT(nfft)
	bins := nfft/2 + 1
	acc := make([]float64, bins)
	seg := make([]float64, nfft)
	step := nfft / 2
	n := 0
	for start := 0; start+nfft <= len(x); start += step {
		copy(seg, x[start:start+nfft])
		// remove DC offset
		floats.AddConst(-floats.Sum(seg)/float64(nfft), seg)
		floats.Mul(seg, win)
		coeffs := fft.Coefficients(nil, seg)
		for i := 0; i < bins; i++ {
			acc[i] += real(coeffs[i])*real(coeffs[i]) + imag(coeffs[i])*imag(coeffs[i])
		}
		n++
	}

	out := Spectrum{Freqs: make([]float64, bins), PSD: make([]float64, bins)}
	for i := 0; i < bins; i++ {
		out.Freqs[i] = fft.Freq(i) * fs
		out.PSD[i] = acc[i] * scale / (fs * float64(n))
		if i > 0 && i < bins-1 {
			out.PSD[i] *= 2
		}
	}
	return out
}
