// Package location contains pure geographic helpers for SOS positions.
package location

import (
	"math"

	"github.com/mmcloughlin/geohash"

	"campuspool/internal/types"
)

const earthRadiusKm = 6371.0

// GeohashPrecision 7 is a cell of roughly 150m.
const GeohashPrecision = 7

// HaversineKm returns the great-circle distance in kilometres between two points.
func HaversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// DistanceKm is HaversineKm over optional points; ok is false if either is missing.
func DistanceKm(a, b *types.Point) (km float64, ok bool) {
	if a == nil || b == nil {
		return 0, false
	}
	return HaversineKm(*a, *b), true
}

func Geohash(p types.Point) string {
	return geohash.EncodeWithPrecision(p.Lat, p.Lng, GeohashPrecision)
}

// Center decodes a geohash back to the centre of its cell.
func Center(hash string) types.Point {
	lat, lng := geohash.Decode(hash)
	return types.Point{Lat: lat, Lng: lng}
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
