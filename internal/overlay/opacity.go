package overlay

import (
	"math"
	"strconv"
	"strings"

	"github.com/joeblew999/plat-broadband/internal/metrics"
)

// NormalizeOpacity returns raw when it is a number in [0,100], otherwise 0.
func NormalizeOpacity(raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw < 0 || raw > 100 {
		return 0
	}
	return raw
}

// ParseOpacity reads a slider value. Empty or non-numeric input yields 0.
func ParseOpacity(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return NormalizeOpacity(v)
}

// OpacityValue normalises a decoded JSON value. Range inputs bound as
// strings are parsed; any other non-number yields 0.
func OpacityValue(v any) float64 {
	switch v := v.(type) {
	case float64:
		return NormalizeOpacity(v)
	case string:
		return ParseOpacity(v)
	}
	return 0
}

// SetOpacity stores raw/100 as the map opacity, after normalising raw, and
// reapplies it to the active layers. It returns the stored value in [0,1].
func (e *Engine) SetOpacity(raw float64) float64 {
	e.mu.Lock()
	e.opacity = NormalizeOpacity(raw) / 100
	e.reapplyLocked()
	change := e.commitLocked(ChangeOpacity)
	e.mu.Unlock()

	e.emit(change)
	return change.Opacity
}

// Reapply sets the stored opacity on every active layer present on the backend.
func (e *Engine) Reapply() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reapplyLocked()
}

func (e *Engine) reapplyLocked() {
	for _, id := range e.active {
		if _, ok := e.backend.GetLayer(id); !ok {
			continue
		}
		if err := e.backend.SetPaintProperty(id, OpacityProperty, e.opacity); err != nil {
			metrics.BackendErrorsTotal.WithLabelValues("set_paint").Inc()
			e.log.Error("set opacity failed", "layer", id, "error", err)
		}
	}
}
