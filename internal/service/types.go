// Package service hosts mounted broadband maps: one overlay engine, state
// sync and area-summary loader per map, plus the event bus the UI streams from.
package service

import (
	"time"

	"github.com/joeblew999/plat-broadband/internal/areasummary"
	"github.com/joeblew999/plat-broadband/internal/legend"
	"github.com/joeblew999/plat-broadband/internal/selection"
)

// MountRequest describes a map to mount.
type MountRequest struct {
	Query  string      `json:"query,omitempty" doc:"Initial URL query, e.g. tech=cf&speed=100_10&type=state&geoid=06" example:"tech=acfosw&speed=25_3"`
	Bounds *[4]float64 `json:"bounds,omitempty" doc:"Initial view bounds: west, south, east, north"`
	Zoom   float64     `json:"zoom,omitempty" minimum:"0" maximum:"22" doc:"Initial zoom level" example:"3"`
}

// SelectionInfo is the stored selection as the UI sees it.
type SelectionInfo struct {
	Tech       string `json:"tech" doc:"Technology codes" example:"acfosw"`
	Speed      string `json:"speed" doc:"Speed tier" example:"25_3"`
	PropertyID string `json:"propertyId,omitempty" doc:"Data property the layers colour by" example:"acfosw_25_3"`
}

// MapInfo describes one mounted map.
type MapInfo struct {
	ID         string               `json:"id" doc:"Map identifier"`
	Created    time.Time            `json:"created" doc:"Mount time"`
	Selection  SelectionInfo        `json:"selection"`
	Legend     legend.Label         `json:"legend"`
	Opacity    float64              `json:"opacity" minimum:"0" maximum:"100" doc:"Overlay opacity in percent" example:"100"`
	Layers     []string             `json:"layers" doc:"Installed overlay layer ids in install order"`
	RemovedAll bool                 `json:"removedAll" doc:"Whether the overlay was reset by remove-all"`
	Query      string               `json:"query" doc:"Persisted URL query"`
	Geography  selection.Geography  `json:"geography"`
	View       MapView              `json:"view"`
	Summary    *areasummary.Summary `json:"summary,omitempty"`
}

// mapSnapshot is the persisted form of a mounted map.
type mapSnapshot struct {
	ID         string    `json:"id"`
	Created    time.Time `json:"created"`
	Query      string    `json:"query"`
	Opacity    float64   `json:"opacity"`
	RemovedAll bool      `json:"removedAll"`
	View       MapView   `json:"view"`
}
