// Package overlay keeps the broadband overlay on a map backend consistent with
// the requested technology/speed selection.
package overlay

import "strings"

// Selection is a requested technology set and speed tier. It is replaced
// wholesale on every change, never partially mutated.
type Selection struct {
	Tech  []string
	Speed string
}

// NewSelection builds a selection from a code string such as "acfosw".
func NewSelection(tech, speed string) Selection {
	return Selection{Tech: ParseTech(tech), Speed: speed}
}

// ParseTech splits a code string into single-character codes.
func ParseTech(tech string) []string {
	if tech == "" {
		return nil
	}
	codes := make([]string, 0, len(tech))
	for _, r := range tech {
		codes = append(codes, string(r))
	}
	return codes
}

// TechString joins the codes back into their compact form.
func (s Selection) TechString() string {
	return strings.Join(s.Tech, "")
}

// PropertyID is the canonical form "<codes>_<tier>" used as the data-driven
// styling key, e.g. "acfosw_25_3".
func (s Selection) PropertyID() string {
	return s.TechString() + "_" + s.Speed
}

// IsZero reports whether nothing is selected.
func (s Selection) IsZero() bool {
	return len(s.Tech) == 0 && s.Speed == ""
}

func (s Selection) clone() Selection {
	if s.Tech != nil {
		s.Tech = append([]string(nil), s.Tech...)
	}
	return s
}
