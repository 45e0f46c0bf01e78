package plot

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/kjstillabower/weatherpy/internal/models"
)

// DateLayout formats the analysis date shown in every title (MM/DD/YYYY).
const DateLayout = "01/02/2006"

const (
	width  = 8 * vg.Inch
	height = 5 * vg.Inch
)

// Chart describes one latitude scatter plot.
type Chart struct {
	File   string
	Metric string
	YLabel string
	Value  func(models.CleanedRecord) float64
}

// Charts are rendered in this order.
var Charts = []Chart{
	{
		File:   "lat_vs_max_temp.png",
		Metric: "Max Temperature",
		YLabel: "Max Temperature (F)",
		Value:  func(r models.CleanedRecord) float64 { return r.MaxTemp },
	},
	{
		File:   "lat_vs_humidity.png",
		Metric: "Humidity",
		YLabel: "Humidity (%)",
		Value:  func(r models.CleanedRecord) float64 { return r.Humidity },
	},
	{
		File:   "lat_vs_cloudiness.png",
		Metric: "Cloudiness",
		YLabel: "Cloudiness (%)",
		Value:  func(r models.CleanedRecord) float64 { return r.Cloudiness },
	},
	{
		File:   "lat_vs_wind_speed.png",
		Metric: "Wind Speed",
		YLabel: "Wind Speed (mph)",
		Value:  func(r models.CleanedRecord) float64 { return r.WindSpeed },
	},
}

// Title returns the chart title for metric on date (already formatted with DateLayout).
func Title(metric, date string) string {
	return fmt.Sprintf("City Latitude vs %s (%s)", metric, date)
}

// Render writes one PNG per chart into dir and returns the written paths.
// An empty rows slice still produces labelled, empty charts.
func Render(rows []models.CleanedRecord, dir, date string) ([]string, error) {
	paths := make([]string, 0, len(Charts))
	for _, c := range Charts {
		p, err := build(c, rows, date)
		if err != nil {
			return paths, fmt.Errorf("plot %s: %w", c.Metric, err)
		}
		path := filepath.Join(dir, c.File)
		if err := p.Save(width, height, path); err != nil {
			return paths, fmt.Errorf("save %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func build(c Chart, rows []models.CleanedRecord, date string) (*plot.Plot, error) {
	p := plot.New()
	p.BackgroundColor = color.White
	p.Title.Text = Title(c.Metric, date)
	p.X.Label.Text = "Latitude"
	p.Y.Label.Text = c.YLabel
	p.Add(plotter.NewGrid())

	if len(rows) > 0 {
		pts := make(plotter.XYs, len(rows))
		for i, r := range rows {
			pts[i].X = r.Latitude
			pts[i].Y = c.Value(r)
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(3)
		s.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
		p.Add(s)
	}

	// Fixed after Add, which widens the range to fit the data.
	p.X.Min = -90
	p.X.Max = 90
	return p, nil
}
