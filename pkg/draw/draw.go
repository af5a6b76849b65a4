// Package draw defines the shared drawing model: points, stroke
// operations, participants, and the normalization rules applied to
// client-supplied tool, width, and coordinate values.
package draw

import "math"

// Tool selects how a stroke composites onto the canvas.
type Tool string

const (
	ToolBrush  Tool = "brush"
	ToolEraser Tool = "eraser"
)

// Stroke width bounds. Out-of-range values are clamped, not rejected.
const (
	MinWidth     = 1.0
	MaxWidth     = 64.0
	DefaultWidth = 4.0
)

// NormalizeTool maps any input to a valid tool: eraser only when
// explicitly requested, brush otherwise.
func NormalizeTool(s string) Tool {
	if Tool(s) == ToolEraser {
		return ToolEraser
	}
	return ToolBrush
}

// ClampWidth forces a width into [MinWidth, MaxWidth]. Non-finite
// values fall back to DefaultWidth.
func ClampWidth(w float64) float64 {
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return DefaultWidth
	}
	if w < MinWidth {
		return MinWidth
	}
	if w > MaxWidth {
		return MaxWidth
	}
	return w
}

// Point is a single captured pointer position. T is a wall-clock
// timestamp in milliseconds, used for display only.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	T int64   `json:"t"`
}

// Finite reports whether both coordinates are usable numbers.
func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Stroke is one continuous pointer gesture. Once finalized its point
// sequence is append-only history; only Active is ever toggled.
type Stroke struct {
	OpID      string  `json:"opId"`
	UserID    string  `json:"userId"`
	Tool      Tool    `json:"tool"`
	Color     string  `json:"color"`
	Width     float64 `json:"width"`
	Points    []Point `json:"points"`
	Active    bool    `json:"active"`
	StartedAt int64   `json:"startedAt"`
	EndedAt   int64   `json:"endedAt"`
}

// Clone returns a copy with its own point slice.
func (s *Stroke) Clone() Stroke {
	out := *s
	out.Points = make([]Point, len(s.Points))
	copy(out.Points, s.Points)
	return out
}

// Participant is a room member as seen by other members.
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}
