package sensor

import (
	"encoding/binary"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Analyser parameters, matching a browser AnalyserNode with fftSize 256.
const (
	FFTSize     = 256
	minDecibels = -100.0
	maxDecibels = -30.0
)

// analyser turns PCM16 frames into the average byte-scaled magnitude of
// the first FFTSize/2 frequency bins.
type analyser struct {
	fft   *fourier.FFT
	buf   []float64
	coeff []complex128
}

func newAnalyser() *analyser {
	return &analyser{
		fft:   fourier.NewFFT(FFTSize),
		buf:   make([]float64, FFTSize),
		coeff: make([]complex128, FFTSize/2+1),
	}
}

// Level computes the spectrum level of a little-endian PCM16 frame. Only
// the most recent FFTSize samples are used; short frames are zero padded.
func (a *analyser) Level(pcm []byte) float64 {
	n := len(pcm) / 2
	if n > FFTSize {
		pcm = pcm[(n-FFTSize)*2:]
		n = FFTSize
	}
	for i := range a.buf {
		a.buf[i] = 0
	}
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		a.buf[i] = float64(v) / 32768
	}
	window.Blackman(a.buf)

	a.coeff = a.fft.Coefficients(a.coeff, a.buf)

	bins := FFTSize / 2
	var sum float64
	for i := 0; i < bins; i++ {
		sum += byteScale(cmplx.Abs(a.coeff[i]) / FFTSize)
	}
	return sum / float64(bins)
}

// byteScale maps a linear magnitude onto 0-255 across the decibel range.
func byteScale(mag float64) float64 {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := math.Floor(255 * (db - minDecibels) / (maxDecibels - minDecibels))
	return math.Max(0, math.Min(255, v))
}
