package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/kjstillabower/weatherpy/internal/models"
	"github.com/kjstillabower/weatherpy/internal/observability"
)

// ErrBadCSV is returned by ReadCSV for a file that does not match the export layout.
var ErrBadCSV = errors.New("invalid cities csv")

// WriteCSV writes rows to path, replacing any existing file. The first column
// is the 0-based row ordinal under a blank header, followed by models.Columns.
// The parent directory must already exist.
func WriteCSV(path string, rows []models.CleanedRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	if err := Encode(f, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close csv: %w", err)
	}
	observability.RecordsExportedTotal.Add(float64(len(rows)))
	return nil
}

// Encode writes the CSV form of rows to w.
func Encode(w io.Writer, rows []models.CleanedRecord) error {
	cw := csv.NewWriter(w)
	header := append([]string{""}, models.Columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, r := range rows {
		rec := []string{
			strconv.Itoa(i),
			r.City,
			formatFloat(r.Cloudiness),
			r.Country,
			formatFloat(r.Humidity),
			strconv.FormatInt(r.Date, 10),
			formatFloat(r.Latitude),
			formatFloat(r.Longitude),
			formatFloat(r.MaxTemp),
			formatFloat(r.WindSpeed),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ReadCSV reads a file written by WriteCSV. The index column is checked and dropped.
func ReadCSV(path string) ([]models.CleanedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses the CSV form produced by Encode.
func Decode(r io.Reader) ([]models.CleanedRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(models.Columns) + 1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrBadCSV, err)
	}
	for i, col := range models.Columns {
		if header[i+1] != col {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrBadCSV, i+1, header[i+1], col)
		}
	}

	var out []models.CleanedRecord
	for n := 0; ; n++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrBadCSV, n, err)
		}
		if rec[0] != strconv.Itoa(n) {
			return nil, fmt.Errorf("%w: row %d has index %q", ErrBadCSV, n, rec[0])
		}
		row, err := parseRow(rec[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrBadCSV, n, err)
		}
		out = append(out, row)
	}
}

func parseRow(f []string) (models.CleanedRecord, error) {
	var row models.CleanedRecord
	var err error
	row.City = f[0]
	if row.Cloudiness, err = strconv.ParseFloat(f[1], 64); err != nil {
		return row, err
	}
	row.Country = f[2]
	if row.Humidity, err = strconv.ParseFloat(f[3], 64); err != nil {
		return row, err
	}
	if row.Date, err = strconv.ParseInt(f[4], 10, 64); err != nil {
		return row, err
	}
	if row.Latitude, err = strconv.ParseFloat(f[5], 64); err != nil {
		return row, err
	}
	if row.Longitude, err = strconv.ParseFloat(f[6], 64); err != nil {
		return row, err
	}
	if row.MaxTemp, err = strconv.ParseFloat(f[7], 64); err != nil {
		return row, err
	}
	if row.WindSpeed, err = strconv.ParseFloat(f[8], 64); err != nil {
		return row, err
	}
	return row, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
