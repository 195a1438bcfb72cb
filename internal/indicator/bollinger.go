package indicator

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrInsufficientData = errors.New("not enough data for bollinger bands")
	ErrInvalidWindow    = errors.New("window must be > 1")
)

// Bands is a Bollinger Band snapshot over the most recent window of closes.
// STD is the sample standard deviation (n-1 denominator).
type Bands struct {
	Window int
	K      float64
	SMA    float64
	STD    float64
	Upper  float64
	Lower  float64
}

// Bollinger computes the bands over the last window values of closes,
// which must be ordered oldest first.
func Bollinger(closes []float64, window int, k float64) (Bands, error) {
	if window <= 1 {
		return Bands{}, ErrInvalidWindow
	}
	if len(closes) < window {
		return Bands{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientData, len(closes), window)
	}
	recent := closes[len(closes)-window:]
	mean, std := stat.MeanStdDev(recent, nil)
	return Bands{
		Window: window,
		K:      k,
		SMA:    mean,
		STD:    std,
		Upper:  mean + k*std,
		Lower:  mean - k*std,
	}, nil
}
