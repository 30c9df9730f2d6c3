package trace

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"plcmotion/pkg/pool"
)

// Summary describes a recorded trace.
type Summary struct {
	Count    int     `json:"count"`
	Duration float64 `json:"duration"`
	Travel   float64 `json:"travel"`
	MaxVel   float64 `json:"max_velocity"`
	MaxAcc   float64 `json:"max_acceleration"`
	MaxLag   float64 `json:"max_lag"`
	MeanLag  float64 `json:"mean_lag"`
	StdLag   float64 `json:"std_lag"`
	RMSLag   float64 `json:"rms_lag"`
	// SettleTime is the time after which |lag| stays within the band
	// passed to Summarize, or -1 when it never settles.
	SettleTime float64 `json:"settle_time"`
}

// Summarize computes statistics of samples. band is the settle band for
// the following error.
func Summarize(samples []Sample, band float64) Summary {
	if len(samples) == 0 {
		return Summary{SettleTime: -1}
	}
	vel := pooledColumn(samples, func(s Sample) float64 { return math.Abs(s.Vel) })
	acc := pooledColumn(samples, func(s Sample) float64 { return math.Abs(s.Acc) })
	lag := pooledColumn(samples, func(s Sample) float64 { return s.Lag })
	absLag := pooledColumn(samples, func(s Sample) float64 { return math.Abs(s.Lag) })
	defer func() {
		pool.PutFloat64Slice(vel)
		pool.PutFloat64Slice(acc)
		pool.PutFloat64Slice(lag)
		pool.PutFloat64Slice(absLag)
	}()

	mean, std := stat.MeanStdDev(lag, nil)
	if len(lag) < 2 {
		std = 0
	}
	sum := Summary{
		Count:      len(samples),
		Duration:   samples[len(samples)-1].T - samples[0].T,
		Travel:     samples[len(samples)-1].Cmd - samples[0].Cmd,
		MaxVel:     floats.Max(vel),
		MaxAcc:     floats.Max(acc),
		MaxLag:     floats.Max(absLag),
		MeanLag:    mean,
		StdLag:     std,
		RMSLag:     floats.Norm(lag, 2) / math.Sqrt(float64(len(lag))),
		SettleTime: -1,
	}
	for i := len(absLag) - 1; i >= 0; i-- {
		if absLag[i] > band {
			if i+1 < len(samples) {
				sum.SettleTime = samples[i+1].T - samples[0].T
			}
			return sum
		}
	}
	sum.SettleTime = 0
	return sum
}
