package geo

import (
	"github.com/kjstillabower/weatherpy/internal/models"
)

// Resolve maps each coordinate to its nearest city and returns the unique
// cities in first-seen order. A city already seen under the same name is
// dropped; the coordinate is not re-sampled.
func Resolve(loc Locator, coords []models.Coordinate) []models.City {
	seen := make(map[string]struct{}, len(coords))
	var out []models.City
	for _, c := range coords {
		city := loc.NearestCity(c.Latitude, c.Longitude)
		if _, dup := seen[city.Name]; dup {
			continue
		}
		seen[city.Name] = struct{}{}
		out = append(out, city)
	}
	return out
}
