package service

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// MapView is the initial camera of a mounted map.
type MapView struct {
	Center [2]float64 `json:"center" doc:"Longitude, latitude of the bounds centre" example:"[-95.9,36.7]"`
	Zoom   float64    `json:"zoom" minimum:"0" maximum:"22" doc:"Initial zoom level" example:"3"`
	Bounds [4]float64 `json:"bounds" doc:"West, south, east, north" example:"[-125,24,-66.9,49.4]"`
}

// DefaultBounds frames the contiguous United States.
var DefaultBounds = orb.Bound{Min: orb.Point{-125, 24}, Max: orb.Point{-66.9, 49.4}}

// DefaultZoom is the zoom used when a mount gives none.
const DefaultZoom = 3

// NewMapView centres a view on b.
func NewMapView(b orb.Bound, zoom float64) MapView {
	c := b.Center()
	return MapView{
		Center: [2]float64{c.Lon(), c.Lat()},
		Zoom:   zoom,
		Bounds: [4]float64{b.Left(), b.Bottom(), b.Right(), b.Top()},
	}
}

// Bound returns the view bounds.
func (v MapView) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{v.Bounds[0], v.Bounds[1]},
		Max: orb.Point{v.Bounds[2], v.Bounds[3]},
	}
}

// ValidateBounds checks b is a non-empty lon/lat box.
func ValidateBounds(b orb.Bound) error {
	if b.Left() < -180 || b.Right() > 180 || b.Bottom() < -90 || b.Top() > 90 {
		return errors.New("bounds must be within -180..180 longitude and -90..90 latitude")
	}
	if b.Left() >= b.Right() || b.Bottom() >= b.Top() {
		return errors.New("bounds must have west < east and south < north")
	}
	return nil
}

// GeoJSON returns the view as a feature collection: the bounds polygon and
// the centre point, both carrying the map id.
func (v MapView) GeoJSON(mapID string) ([]byte, error) {
	fc := geojson.NewFeatureCollection()

	bounds := geojson.NewFeature(v.Bound().ToPolygon())
	bounds.Properties["map"] = mapID
	bounds.Properties["kind"] = "bounds"
	bounds.Properties["zoom"] = v.Zoom
	fc.Append(bounds)

	center := geojson.NewFeature(orb.Point(v.Center))
	center.Properties["map"] = mapID
	center.Properties["kind"] = "center"
	fc.Append(center)

	return fc.MarshalJSON()
}
