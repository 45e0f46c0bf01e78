package table

import (
	"github.com/kjstillabower/weatherpy/internal/models"
	"github.com/kjstillabower/weatherpy/internal/observability"
)

// MaxHumidity is the upper bound of a physically valid relative humidity.
const MaxHumidity = 100.0

// CleanReport counts what Clean removed.
type CleanReport struct {
	Input           int
	Kept            int
	HumidityOver100 int // humidity > 100
	HumidityInvalid int // humidity missing, non-numeric or negative
}

// Dropped returns the total number of removed rows.
func (r CleanReport) Dropped() int {
	return r.HumidityOver100 + r.HumidityInvalid
}

// Clean renames main.humidity to humidity, drops rows whose humidity is not
// within [0, 100], and projects the survivors onto the reporting schema.
// Input order is preserved. raw is not modified.
func Clean(raw *RawTable) ([]models.CleanedRecord, CleanReport) {
	rep := CleanReport{Input: raw.Len()}
	out := make([]models.CleanedRecord, 0, raw.Len())
	for _, r := range raw.Rows() {
		r = renameHumidity(r)
		h, ok := r.Float(FieldHumidity)
		switch {
		case !ok || !(h >= 0):
			rep.HumidityInvalid++
			continue
		case h > MaxHumidity:
			rep.HumidityOver100++
			continue
		}
		out = append(out, project(r, h))
	}
	rep.Kept = len(out)

	if rep.HumidityOver100 > 0 {
		observability.RecordsDroppedTotal.WithLabelValues("humidity_over_100").Add(float64(rep.HumidityOver100))
	}
	if rep.HumidityInvalid > 0 {
		observability.RecordsDroppedTotal.WithLabelValues("humidity_invalid").Add(float64(rep.HumidityInvalid))
	}
	return out, rep
}

// renameHumidity returns a copy of r with main.humidity moved to humidity.
// A record that already has humidity is returned unchanged.
func renameHumidity(r Record) Record {
	if _, ok := r[FieldHumidity]; ok {
		return r
	}
	v, ok := r[FieldRawHumidity]
	if !ok {
		return r
	}
	cp := make(Record, len(r))
	for k, val := range r {
		if k != FieldRawHumidity {
			cp[k] = val
		}
	}
	cp[FieldHumidity] = v
	return cp
}

func project(r Record, humidity float64) models.CleanedRecord {
	city, _ := r.String(FieldName)
	country, _ := r.String(FieldCountry)
	clouds, _ := r.Float(FieldCloudiness)
	dt, _ := r.Float(FieldDate)
	lat, _ := r.Float(FieldLatitude)
	lon, _ := r.Float(FieldLongitude)
	maxTemp, _ := r.Float(FieldMaxTemp)
	wind, _ := r.Float(FieldWindSpeed)
	return models.CleanedRecord{
		City:       city,
		Cloudiness: clouds,
		Country:    country,
		Humidity:   humidity,
		Date:       int64(dt),
		Latitude:   lat,
		Longitude:  lon,
		MaxTemp:    maxTemp,
		WindSpeed:  wind,
	}
}
