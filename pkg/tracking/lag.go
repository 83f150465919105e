package tracking

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"

	"stereocalib/internal/errkind"
)

// PointFunc reconstructs a fixed point for one frame with the matcher's
// current lag. ok is false when the frame gives no point, for example when
// its timing error is out of tolerance.
type PointFunc func(frame int) (p r3.Vector, ok bool)

// LagSweep is the outcome of a temporal calibration.
type LagSweep struct {
	// LagsMs holds the trial lags
	LagsMs []float64

	// Scores holds the summed coordinate variance of each lag, +Inf when
	// fewer than two frames gave a point
	Scores []float64

	// Counts holds the number of points of each lag
	Counts []int

	// BestIndex indexes the lowest score
	BestIndex int

	// BestLagMs is LagsMs[BestIndex]
	BestLagMs float64
}

// SweepLag runs a temporal calibration: for each trial lag it reconstructs a
// fixed point on every frame and scores the lag by the summed variance of
// the point's coordinates. The best lag is applied before returning.
func (m *Matcher) SweepLag(lagsMs []float64, videoLeadsTracking bool, tracker int, frames []int, point PointFunc) (*LagSweep, error) {
	if len(lagsMs) == 0 || len(frames) == 0 {
		return nil, errkind.New(errkind.InputEmpty, "lag sweep needs lags and frames")
	}
	if err := m.checkReady(); err != nil {
		return nil, err
	}

	sweep := &LagSweep{
		LagsMs: append([]float64(nil), lagsMs...),
		Scores: make([]float64, len(lagsMs)),
		Counts: make([]int, len(lagsMs)),
	}
	xs := make([]float64, 0, len(frames))
	ys := make([]float64, 0, len(frames))
	zs := make([]float64, 0, len(frames))
	best := math.Inf(1)
	for i, lag := range lagsMs {
		if err := m.SetVideoLagMilliseconds(lag, videoLeadsTracking, tracker); err != nil {
			return nil, err
		}
		xs, ys, zs = xs[:0], ys[:0], zs[:0]
		for _, frame := range frames {
			p, ok := point(frame)
			if !ok {
				continue
			}
			xs = append(xs, p.X)
			ys = append(ys, p.Y)
			zs = append(zs, p.Z)
		}
		sweep.Counts[i] = len(xs)
		sweep.Scores[i] = math.Inf(1)
		if len(xs) >= 2 {
			sweep.Scores[i] = stat.Variance(xs, nil) + stat.Variance(ys, nil) + stat.Variance(zs, nil)
		}
		if sweep.Scores[i] < best {
			best = sweep.Scores[i]
			sweep.BestIndex = i
		}
		m.logger.Debugw("lag trial", "lagMs", lag, "points", len(xs), "score", sweep.Scores[i])
	}
	sweep.BestLagMs = lagsMs[sweep.BestIndex]

	if err := m.SetVideoLagMilliseconds(sweep.BestLagMs, videoLeadsTracking, tracker); err != nil {
		return nil, err
	}
	m.logger.Infow("lag sweep done", "bestLagMs", sweep.BestLagMs, "score", sweep.Scores[sweep.BestIndex])
	return sweep, nil
}

// LagRange returns the lags from start to stop inclusive in steps of step.
func LagRange(start, stop, step float64) []float64 {
	if step <= 0 || stop < start {
		return nil
	}
	n := int(math.Floor((stop-start)/step+1e-9)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}
