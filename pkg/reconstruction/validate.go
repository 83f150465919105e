package reconstruction

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat"

	"stereocalib/internal/errkind"
	"stereocalib/internal/models"
)

// ValidationMetrics compares reconstructed world points with gold standard
// points. Every point is classified to its nearest gold standard point and
// its error is the distance between the two.
type ValidationMetrics struct {
	// Count is the number of validated points
	Count int

	// Ambiguous counts points whose second nearest gold standard point lies
	// within AmbiguityRatio times the nearest distance. Such a classification
	// may pair the point with the wrong feature.
	Ambiguous int

	// RMSE is the root mean square error over all points
	RMSE float64

	// MeanError and MedianError summarise the errors
	MeanError   float64
	MedianError float64

	// MaxError is the largest error
	MaxError float64

	// Errors holds the error of each point, in input order
	Errors []float64

	// Nearest holds the gold standard index each point was classified to
	Nearest []int

	// PerGold counts the points classified to each gold standard point
	PerGold []int
}

// goldPoint is a gold standard point that remembers its input index, since
// building the tree reorders the points.
type goldPoint struct {
	r3.Vector
	index int
}

// Compare implements the kdtree.Comparable interface
func (p goldPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(goldPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions
func (p goldPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p goldPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(goldPoint)
	return p.Sub(q.Vector).Norm2()
}

// goldPoints satisfies kdtree.Interface
type goldPoints []goldPoint

func (p goldPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p goldPoints) Len() int                              { return len(p) }
func (p goldPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p goldPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(goldPlane{goldPoints: p, Dim: d}, kdtree.MedianOfRandoms(goldPlane{goldPoints: p, Dim: d}, 100))
}

// goldPlane implements sort.Interface and kdtree.SortSlicer for goldPoints
type goldPlane struct {
	goldPoints
	kdtree.Dim
}

func (p goldPlane) Less(i, j int) bool {
	return p.goldPoints[i].Compare(p.goldPoints[j], p.Dim) < 0
}

func (p goldPlane) Slice(start, end int) kdtree.SortSlicer {
	return goldPlane{goldPoints: p.goldPoints[start:end], Dim: p.Dim}
}

func (p goldPlane) Swap(i, j int) {
	p.goldPoints[i], p.goldPoints[j] = p.goldPoints[j], p.goldPoints[i]
}

// GoldStandardPoints collects the points of every world channel object.
func GoldStandardPoints(objs []models.PickedObject) []r3.Vector {
	var out []r3.Vector
	for _, o := range objs {
		if o.Channel == models.WorldChannel {
			out = append(out, o.Points...)
		}
	}
	return out
}

// ValidateAgainstGold classifies every point to its nearest gold standard
// point. ambiguityRatio below or equal to 1 disables the ambiguity check.
func ValidateAgainstGold(points, gold []r3.Vector, ambiguityRatio float64) (ValidationMetrics, error) {
	if len(points) == 0 {
		return ValidationMetrics{}, errkind.New(errkind.InputEmpty, "no points to validate")
	}
	if len(gold) == 0 {
		return ValidationMetrics{}, errkind.New(errkind.InputEmpty, "no gold standard points")
	}

	tree := make(goldPoints, len(gold))
	for i, g := range gold {
		tree[i] = goldPoint{Vector: g, index: i}
	}
	kd := kdtree.New(tree, false)

	m := ValidationMetrics{
		Count:   len(points),
		Errors:  make([]float64, len(points)),
		Nearest: make([]int, len(points)),
		PerGold: make([]int, len(gold)),
	}
	squared := make([]float64, len(points))
	for i, p := range points {
		keeper := kdtree.NewNKeeper(2)
		kd.NearestSet(keeper, goldPoint{Vector: p})

		found := make([]kdtree.ComparableDist, 0, 2)
		for _, item := range keeper.Heap {
			// Skip the sentinel value
			if item.Comparable == nil {
				continue
			}
			found = append(found, item)
		}
		sort.Slice(found, func(a, b int) bool { return found[a].Dist < found[b].Dist })

		nearest := found[0].Comparable.(goldPoint)
		m.Nearest[i] = nearest.index
		m.PerGold[nearest.index]++
		m.Errors[i] = math.Sqrt(found[0].Dist)
		squared[i] = found[0].Dist
		if ambiguityRatio > 1 && len(found) > 1 && math.Sqrt(found[1].Dist) <= ambiguityRatio*m.Errors[i] {
			m.Ambiguous++
		}
	}

	m.RMSE = math.Sqrt(stat.Mean(squared, nil))
	m.MeanError = stat.Mean(m.Errors, nil)
	m.MaxError = floats.Max(m.Errors)
	sorted := append([]float64(nil), m.Errors...)
	sort.Float64s(sorted)
	m.MedianError = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return m, nil
}

// Validate compares world points with the gold standard and keeps the metrics
// for GetMetrics.
func (r *Reconstructor) Validate(points, gold []r3.Vector) (ValidationMetrics, error) {
	m, err := ValidateAgainstGold(points, gold, r.params.AmbiguityRatio)
	if err != nil {
		return m, err
	}
	r.metrics = m
	r.logger.Infow("validated against gold standard",
		"points", m.Count,
		"gold", len(gold),
		"rmse", m.RMSE,
		"max", m.MaxError,
		"ambiguous", m.Ambiguous)
	return m, nil
}
