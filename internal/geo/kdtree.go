package geo

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/kjstillabower/weatherpy/internal/models"
)

// place is a city embedded on the unit sphere. Squared chord distance is
// monotonic in great-circle distance, so Euclidean nearest is geodesic nearest.
type place struct {
	pos  [3]float64
	city models.City
}

func newPlace(city models.City, lat, lng float64) place {
	phi := lat * math.Pi / 180
	lambda := lng * math.Pi / 180
	return place{
		pos: [3]float64{
			math.Cos(phi) * math.Cos(lambda),
			math.Cos(phi) * math.Sin(lambda),
			math.Sin(phi),
		},
		city: city,
	}
}

func (p place) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.pos[d] - c.(place).pos[d]
}

func (p place) Dims() int { return 3 }

func (p place) Distance(c kdtree.Comparable) float64 {
	q := c.(place)
	var sum float64
	for i := range p.pos {
		d := p.pos[i] - q.pos[i]
		sum += d * d
	}
	return sum
}

type places []place

func (p places) Index(i int) kdtree.Comparable { return p[i] }
func (p places) Len() int                      { return len(p) }
func (p places) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}
func (p places) Pivot(d kdtree.Dim) int {
	return axis{places: p, dim: d}.pivot()
}

// axis orders places along one dimension for median selection.
type axis struct {
	places places
	dim    kdtree.Dim
}

func (a axis) Len() int           { return len(a.places) }
func (a axis) Less(i, j int) bool { return a.places[i].pos[a.dim] < a.places[j].pos[a.dim] }
func (a axis) Swap(i, j int)      { a.places[i], a.places[j] = a.places[j], a.places[i] }
func (a axis) Slice(start, end int) kdtree.SortSlicer {
	a.places = a.places[start:end]
	return a
}
func (a axis) pivot() int {
	return kdtree.Partition(a, kdtree.MedianOfMedians(a))
}
