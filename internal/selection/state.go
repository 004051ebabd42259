// Package selection mirrors the overlay selection into persisted URL query
// state and rebuilds selections from it on navigation.
package selection

import (
	"net/url"
	"slices"
	"strings"
)

// Query parameter names.
const (
	ParamTech  = "tech"
	ParamSpeed = "speed"
	ParamType  = "type"
	ParamGeoID = "geoid"
)

// Nation is the geography used when the URL names none, or an invalid one.
const (
	NationType = "nation"
	NationID   = "0"
)

// GeographyTypes is the allow-list of geography kinds accepted from the URL.
var GeographyTypes = []string{"state", "county", "place", "cbsa", "cd", "tribal"}

// Geography identifies the area a summary is drawn for.
type Geography struct {
	Type string `json:"type" doc:"Geography kind" example:"county"`
	ID   string `json:"geoid" doc:"Geography identifier" example:"06075"`
}

// IsNation reports whether g is the nation-level default.
func (g Geography) IsNation() bool {
	return g.Type == NationType
}

// Nation returns the nation-level default geography.
func Nation() Geography {
	return Geography{Type: NationType, ID: NationID}
}

// ParseGeography reads type and geoid. Both must be present and the type must
// be allow-listed, otherwise the nation default is returned.
func ParseGeography(q url.Values) Geography {
	typ := q.Get(ParamType)
	id := strings.TrimSpace(q.Get(ParamGeoID))
	if !q.Has(ParamType) || !q.Has(ParamGeoID) || id == "" || !slices.Contains(GeographyTypes, typ) {
		return Nation()
	}
	return Geography{Type: typ, ID: id}
}

// State is the full set of persisted fields.
type State struct {
	Tech      string
	Speed     string
	Geography Geography
}

// Encode writes the state as query values. Empty fields and the nation
// geography are omitted.
func (s State) Encode() url.Values {
	q := url.Values{}
	if s.Tech != "" {
		q.Set(ParamTech, s.Tech)
	}
	if s.Speed != "" {
		q.Set(ParamSpeed, s.Speed)
	}
	if s.Geography.Type != "" && !s.Geography.IsNation() {
		q.Set(ParamType, s.Geography.Type)
		q.Set(ParamGeoID, s.Geography.ID)
	}
	return q
}
