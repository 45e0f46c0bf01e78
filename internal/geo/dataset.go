// Package geo resolves sampled coordinates to the nearest known city.
package geo

import (
	"compress/gzip"
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/kjstillabower/weatherpy/internal/models"
)

//go:embed data/worldcities.csv.gz
var embedded embed.FS

const embeddedPath = "data/worldcities.csv.gz"

var (
	// ErrEmptyDataset is returned when a cities file has no usable rows.
	ErrEmptyDataset = errors.New("cities dataset is empty")
	// ErrBadRow is returned for a row that cannot be parsed.
	ErrBadRow = errors.New("invalid cities row")
)

// Locator maps a coordinate to the nearest known city.
type Locator interface {
	NearestCity(lat, lng float64) models.City
}

// Dataset is a static set of cities indexed for nearest-neighbour lookup.
// It is read-only after construction and safe for concurrent use.
type Dataset struct {
	tree *kdtree.Tree
	size int
}

// LoadEmbedded builds a Dataset from the bundled, gzip-compressed cities table.
func LoadEmbedded() (*Dataset, error) {
	f, err := embedded.Open(embeddedPath)
	if err != nil {
		return nil, fmt.Errorf("open embedded cities: %w", err)
	}
	defer f.Close()
	ds, err := parseGzip(f)
	if err != nil {
		return nil, fmt.Errorf("embedded cities: %w", err)
	}
	return ds, nil
}

// LoadFile builds a Dataset from a cities CSV on disk. A path ending in
// ".gz" is decompressed first.
func LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cities file: %w", err)
	}
	defer f.Close()

	var ds *Dataset
	if strings.HasSuffix(path, ".gz") {
		ds, err = parseGzip(f)
	} else {
		ds, err = Parse(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

func parseGzip(r io.Reader) (*Dataset, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()
	return Parse(zr)
}

// Parse reads a cities table with the header Country,City,Latitude,Longitude.
// Columns are matched by header name, case-insensitively; extra columns are ignored.
func Parse(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrEmptyDataset
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"country", "city", "latitude", "longitude"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: header missing %q", ErrBadRow, col)
		}
	}

	var places places
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		p, err := parsePlace(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		places = append(places, p)
	}
	if len(places) == 0 {
		return nil, ErrEmptyDataset
	}
	return &Dataset{tree: kdtree.New(places, false), size: len(places)}, nil
}

func parsePlace(rec []string, idx map[string]int) (place, error) {
	field := func(name string) string {
		i := idx[name]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	name := field("city")
	if name == "" {
		return place{}, fmt.Errorf("%w: empty city name", ErrBadRow)
	}
	lat, err := strconv.ParseFloat(field("latitude"), 64)
	if err != nil || lat < -90 || lat > 90 {
		return place{}, fmt.Errorf("%w: latitude %q", ErrBadRow, field("latitude"))
	}
	lng, err := strconv.ParseFloat(field("longitude"), 64)
	if err != nil || lng < -180 || lng > 180 {
		return place{}, fmt.Errorf("%w: longitude %q", ErrBadRow, field("longitude"))
	}
	return newPlace(models.City{Name: name, CountryCode: strings.ToLower(field("country"))}, lat, lng), nil
}

// Len returns the number of cities in the dataset.
func (d *Dataset) Len() int {
	return d.size
}

// NearestCity returns the city with the smallest great-circle distance to (lat, lng).
func (d *Dataset) NearestCity(lat, lng float64) models.City {
	q := newPlace(models.City{}, lat, lng)
	got, _ := d.tree.Nearest(q)
	return got.(place).city
}
