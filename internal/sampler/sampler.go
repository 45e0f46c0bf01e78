// Package sampler draws uniformly distributed coordinates over the globe.
package sampler

import (
	"math/rand/v2"

	"github.com/kjstillabower/weatherpy/internal/models"
)

// Coordinate bounds in decimal degrees.
const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
)

// DefaultSize is the batch size used when New is given a non-positive size.
const DefaultSize = 1500

// Sampler produces batches of random coordinates. Not safe for concurrent use.
type Sampler struct {
	size int
	rng  *rand.Rand
}

// New returns a Sampler drawing size coordinates per batch. A zero seed draws
// from a randomly seeded source; any other seed makes batches reproducible.
func New(size int, seed uint64) *Sampler {
	if size <= 0 {
		size = DefaultSize
	}
	var src rand.Source
	if seed == 0 {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	} else {
		src = rand.NewPCG(seed, seed)
	}
	return &Sampler{size: size, rng: rand.New(src)}
}

// Size returns the number of coordinates per batch.
func (s *Sampler) Size() int {
	return s.size
}

// Sample draws one batch. Latitude and longitude are drawn independently.
func (s *Sampler) Sample() []models.Coordinate {
	out := make([]models.Coordinate, s.size)
	for i := range out {
		out[i] = models.Coordinate{
			Latitude:  uniform(s.rng, MinLatitude, MaxLatitude),
			Longitude: uniform(s.rng, MinLongitude, MaxLongitude),
		}
	}
	return out
}

// uniform returns a value in [lo, hi).
func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
