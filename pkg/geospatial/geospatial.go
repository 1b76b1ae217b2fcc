package geospatial

import (
	"encoding/json"
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// ValidateGeoJSON validates a GeoJSON feature string and returns its geometry
func ValidateGeoJSON(geojsonStr string) (orb.Geometry, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(geojsonStr), &raw); err != nil {
		return nil, err
	}

	feature, err := geojson.UnmarshalFeature([]byte(geojsonStr))
	if err != nil {
		return nil, err
	}

	if feature.Geometry == nil {
		return nil, errors.New("invalid GeoJSON: no geometry")
	}

	return feature.Geometry, nil
}

// CalculateArea calculates the area in square meters for a geometry
func CalculateArea(geometry orb.Geometry) float64 {
	return planar.Area(geometry)
}

// CalculateCentroid calculates the centroid of a geometry
func CalculateCentroid(geometry orb.Geometry) orb.Point {
	centroid, _ := planar.CentroidArea(geometry)
	return centroid
}

// ConvertToHectares converts square meters to hectares
func ConvertToHectares(sqMeters float64) float64 {
	return sqMeters / 10000
}

// ValidCoordinates reports whether lat/lng fall inside [-90,90]x[-180,180]
func ValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
