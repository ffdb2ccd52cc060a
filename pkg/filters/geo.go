package filters

import (
	"errors"
	"fmt"
	"math"

	"github.com/cuemby/gossipdb/pkg/typedstore"
)

// ErrUnknownUnit is returned when a GeoQuery names a unit other than
// m, km, mi, or ft.
var ErrUnknownUnit = errors.New("filters: unknown geo unit")

// ErrUnknownMember is returned when a GeoQuery names an origin member
// that does not exist in the store.
var ErrUnknownMember = errors.New("filters: unknown geo member")

const earthRadiusMeters = 6_371_000.0

var unitMeters = map[string]float64{
	"m":  1,
	"km": 1000,
	"mi": 1609.344,
	"ft": 0.3048,
}

// GeoQuery searches a Geo store for members within Radius of an origin,
// given either as explicit coordinates or as the name of a stored member.
type GeoQuery struct {
	OriginMember string // if set, OriginLon/OriginLat are ignored
	OriginLon    float64
	OriginLat    float64
	Radius       float64
	Unit         string // "m", "km", "mi", or "ft"
}

// GeoResult is one member within radius, with its distance from the origin
// expressed in the query's unit.
type GeoResult struct {
	Member   string
	Distance float64
}

// SearchGeo returns every member of members within q.Radius of its origin,
// sorted nearest first.
func SearchGeo(members map[string]typedstore.GeoPoint, q GeoQuery) ([]GeoResult, error) {
	perMeter, ok := unitMeters[q.Unit]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUnit, q.Unit)
	}

	originLon, originLat := q.OriginLon, q.OriginLat
	if q.OriginMember != "" {
		p, ok := members[q.OriginMember]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMember, q.OriginMember)
		}
		originLon, originLat = p.Longitude, p.Latitude
	}

	var results []GeoResult
	for member, p := range members {
		if q.OriginMember != "" && member == q.OriginMember {
			continue
		}
		distMeters := haversineMeters(originLat, originLon, p.Latitude, p.Longitude)
		dist := distMeters / perMeter
		if dist <= q.Radius {
			results = append(results, GeoResult{Member: member, Distance: dist})
		}
	}

	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j-1].Distance > results[j].Distance; j-- {
			results[j-1], results[j] = results[j], results[j-1]
		}
	}
	return results, nil
}

// haversineMeters computes the great-circle distance between two
// coordinates, in meters.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}
