package models

// Coordinate is a sampled point on the globe in decimal degrees.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// City is a populated place resolved from a coordinate.
type City struct {
	Name        string
	CountryCode string
}

// CleanedRecord is one row of the reporting table.
type CleanedRecord struct {
	City       string  `json:"City"`
	Cloudiness float64 `json:"Cloudiness"`
	Country    string  `json:"Country"`
	Humidity   float64 `json:"Humidity"`
	Date       int64   `json:"Date"` // unix seconds of the observation
	Latitude   float64 `json:"Latitude"`
	Longitude  float64 `json:"Longitude"`
	MaxTemp    float64 `json:"Max Temp"`
	WindSpeed  float64 `json:"Wind Speed"`
}

// Reporting column names in output order.
const (
	ColumnCity       = "City"
	ColumnCloudiness = "Cloudiness"
	ColumnCountry    = "Country"
	ColumnHumidity   = "Humidity"
	ColumnDate       = "Date"
	ColumnLatitude   = "Latitude"
	ColumnLongitude  = "Longitude"
	ColumnMaxTemp    = "Max Temp"
	ColumnWindSpeed  = "Wind Speed"
)

// Columns lists the reporting columns in their fixed order.
var Columns = []string{
	ColumnCity,
	ColumnCloudiness,
	ColumnCountry,
	ColumnHumidity,
	ColumnDate,
	ColumnLatitude,
	ColumnLongitude,
	ColumnMaxTemp,
	ColumnWindSpeed,
}
