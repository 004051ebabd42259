// Package legend derives the human-readable technology and speed labels shown
// next to the overlay.
package legend

import (
	"sort"
	"strings"
)

// Other is always listed last in a technology label.
const Other = "Other"

// SymmetricTier is the tier whose label is fixed regardless of encoding.
const SymmetricTier = "200"

// SymmetricLabel is the label displayed for SymmetricTier.
const SymmetricLabel = "0.2/0.2"

// Technology maps a single-character code to a display name.
type Technology struct {
	Code string `json:"code" yaml:"code" doc:"Single-character technology code" example:"f"`
	Name string `json:"name" yaml:"name" doc:"Display name" example:"Fiber"`
}

// Table is a static code to name lookup.
type Table []Technology

// DefaultTable returns the broadband technologies.
func DefaultTable() Table {
	return Table{
		{Code: "a", Name: "ADSL"},
		{Code: "c", Name: "Cable"},
		{Code: "d", Name: "DSL"},
		{Code: "f", Name: "Fiber"},
		{Code: "o", Name: Other},
		{Code: "s", Name: "Satellite"},
		{Code: "w", Name: "Fixed Wireless"},
	}
}

// Name returns the display name for code.
func (t Table) Name(code string) (string, bool) {
	for _, tech := range t {
		if tech.Code == code {
			return tech.Name, true
		}
	}
	return "", false
}

// Label is the legend text for a selection. It is never persisted.
type Label struct {
	Tech  string `json:"tech" doc:"Technology label" example:"Cable, Fiber, Other"`
	Speed string `json:"speed" doc:"Speed label" example:"25/3"`
}

// Deriver turns selections into labels.
type Deriver struct {
	table Table
}

// NewDeriver creates a deriver; a nil table uses DefaultTable.
func NewDeriver(table Table) *Deriver {
	if table == nil {
		table = DefaultTable()
	}
	return &Deriver{table: table}
}

// Table returns the lookup table in use.
func (d *Deriver) Table() Table { return d.table }

// Derive builds both labels.
func (d *Deriver) Derive(techCodes []string, speedTier string) Label {
	return Label{Tech: d.TechLabel(techCodes), Speed: SpeedLabel(speedTier)}
}

// TechLabel maps codes to names, drops unknown codes, sorts the names and
// moves Other to the end.
func (d *Deriver) TechLabel(techCodes []string) string {
	names := make([]string, 0, len(techCodes))
	hasOther := false
	for _, code := range techCodes {
		name, ok := d.table.Name(code)
		if !ok {
			continue
		}
		if name == Other {
			hasOther = true
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if hasOther {
		names = append(names, Other)
	}
	return strings.Join(names, ", ")
}

// SpeedLabel renders "<down>_<up>" as "<down>/<up>".
func SpeedLabel(tier string) string {
	if tier == SymmetricTier {
		return SymmetricLabel
	}
	down, up, ok := strings.Cut(tier, "_")
	if !ok || down == "" || up == "" || strings.Contains(up, "_") {
		return tier
	}
	return down + "/" + up
}
