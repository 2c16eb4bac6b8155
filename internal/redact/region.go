package redact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Rect is an axis aligned rectangle in document space (bottom-left origin)
type Rect struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Width returns the horizontal extent
func (r Rect) Width() float64 { return r.MaxX - r.MinX }

// Height returns the vertical extent
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Degenerate reports whether the rectangle has no area
func (r Rect) Degenerate() bool {
	return !(r.MaxX > r.MinX) || !(r.MaxY > r.MinY)
}

// Intersects reports whether r and o overlap. Touching edges count as
// overlapping so content sitting exactly on a boundary is redacted.
func (r Rect) Intersects(o Rect) bool {
	return !(o.MinX > r.MaxX || o.MaxX < r.MinX || o.MinY > r.MaxY || o.MaxY < r.MinY)
}

// Intersect returns the overlap of r and o
func (r Rect) Intersect(o Rect) (Rect, bool) {
	out := Rect{
		MinX: math.Max(r.MinX, o.MinX),
		MinY: math.Max(r.MinY, o.MinY),
		MaxX: math.Min(r.MaxX, o.MaxX),
		MaxY: math.Min(r.MaxY, o.MaxY),
	}
	if out.MinX > out.MaxX || out.MinY > out.MaxY {
		return Rect{}, false
	}
	return out, true
}

// Translate shifts the rectangle
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{MinX: r.MinX + dx, MinY: r.MinY + dy, MaxX: r.MaxX + dx, MaxY: r.MaxY + dy}
}

// RegionSpec is a rectangle as received from the caller, in the top-left
// origin convention used by text extraction libraries. Page is zero-based.
type RegionSpec struct {
	Page       int     `json:"page"`
	X0         float64 `json:"x0"`
	X1         float64 `json:"x1"`
	Y0         float64 `json:"y0"`
	Y1         float64 `json:"y1"`
	PageHeight float64 `json:"page_height"`
	PageWidth  float64 `json:"page_width"`

	// problems found while decoding (missing or non-numeric fields)
	problems []string
	// badPage is set when the page field itself could not be decoded
	badPage bool
}

// NormalizedRegion is a validated rectangle in document-native coordinates.
// Page is one-based; Source is the index of the originating RegionSpec.
type NormalizedRegion struct {
	Page   int `json:"page"`
	Source int `json:"source"`
	Rect
}

var regionFields = []struct {
	name    string
	aliases []string
	set     func(*RegionSpec, float64)
}{
	{"x0", nil, func(s *RegionSpec, v float64) { s.X0 = v }},
	{"x1", nil, func(s *RegionSpec, v float64) { s.X1 = v }},
	{"y0", nil, func(s *RegionSpec, v float64) { s.Y0 = v }},
	{"y1", nil, func(s *RegionSpec, v float64) { s.Y1 = v }},
	{"page_height", []string{"pageHeight"}, func(s *RegionSpec, v float64) { s.PageHeight = v }},
	{"page_width", []string{"pageWidth"}, func(s *RegionSpec, v float64) { s.PageWidth = v }},
}

// UnmarshalJSON decodes a region leniently: numbers may be sent as JSON
// numbers or numeric strings. Missing or malformed geometry does not fail
// decoding; it rejects the region later in Normalize.
func (s *RegionSpec) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("region must be a JSON object: %w", err)
	}

	*s = RegionSpec{}

	if v, found, err := numberField(raw, "page"); err != nil {
		s.problems = append(s.problems, "page is not numeric")
		s.badPage = true
	} else if found {
		if v < 0 || v != math.Trunc(v) {
			s.problems = append(s.problems, fmt.Sprintf("page must be a non-negative integer, got %v", v))
			s.badPage = true
		} else {
			s.Page = int(v)
		}
	}

	for _, f := range regionFields {
		keys := append([]string{f.name}, f.aliases...)
		v, found, err := numberField(raw, keys...)
		switch {
		case err != nil:
			s.problems = append(s.problems, f.name+" is not numeric")
		case !found:
			s.problems = append(s.problems, "missing "+f.name)
		default:
			f.set(s, v)
		}
	}

	return nil
}

// numberField looks up the first present key and parses it as a finite number
func numberField(raw map[string]json.RawMessage, keys ...string) (float64, bool, error) {
	for _, key := range keys {
		msg, ok := raw[key]
		if !ok || string(bytes.TrimSpace(msg)) == "null" {
			continue
		}

		var n float64
		if err := json.Unmarshal(msg, &n); err == nil {
			return n, true, nil
		}

		var str string
		if err := json.Unmarshal(msg, &str); err != nil {
			return 0, true, fmt.Errorf("%s: unsupported value %s", key, string(msg))
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, true, fmt.Errorf("%s: %q is not a number", key, str)
		}
		return n, true, nil
	}
	return 0, false, nil
}

// Normalize maps the region into document-native coordinates: the y axis is
// inverted against the caller's page height and every bound is clamped to
// the page. The zero-based page index becomes one-based here and nowhere
// else. Rejected regions return a RegionSkipped error.
func (s RegionSpec) Normalize() (NormalizedRegion, error) {
	if len(s.problems) > 0 {
		page := s.Page + 1
		if s.badPage {
			page = 0
		}
		return NormalizedRegion{}, RegionSkipped(-1, page, strings.Join(s.problems, "; "))
	}
	if s.Page < 0 {
		return NormalizedRegion{}, RegionSkipped(-1, 0, fmt.Sprintf("page must be non-negative, got %d", s.Page))
	}
	if !(s.PageHeight > 0) || math.IsInf(s.PageHeight, 0) {
		return NormalizedRegion{}, RegionSkipped(-1, s.Page+1, "page_height must be a positive number")
	}
	if !(s.PageWidth > 0) || math.IsInf(s.PageWidth, 0) {
		return NormalizedRegion{}, RegionSkipped(-1, s.Page+1, "page_width must be a positive number")
	}
	for _, v := range []float64{s.X0, s.X1, s.Y0, s.Y1} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NormalizedRegion{}, RegionSkipped(-1, s.Page+1, "coordinates must be finite numbers")
		}
	}

	yTop := s.PageHeight - s.Y1
	yBottom := s.PageHeight - s.Y0

	r := Rect{
		MinX: clamp(math.Min(s.X0, s.X1), 0, s.PageWidth),
		MinY: clamp(math.Min(yTop, yBottom), 0, s.PageHeight),
		MaxX: clamp(math.Max(s.X0, s.X1), 0, s.PageWidth),
		MaxY: clamp(math.Max(yTop, yBottom), 0, s.PageHeight),
	}
	if r.Degenerate() {
		return NormalizedRegion{}, RegionSkipped(-1, s.Page+1,
			fmt.Sprintf("degenerate rectangle after normalization (%.2f,%.2f)-(%.2f,%.2f)",
				r.MinX, r.MinY, r.MaxX, r.MaxY))
	}

	return NormalizedRegion{Page: s.Page + 1, Rect: r}, nil
}

// NormalizeAll normalizes every region, returning the accepted ones in input
// order and a RegionSkipped warning for each rejected one.
func NormalizeAll(specs []RegionSpec) ([]NormalizedRegion, []*Error) {
	accepted := make([]NormalizedRegion, 0, len(specs))
	var rejected []*Error

	for i, spec := range specs {
		n, err := spec.Normalize()
		if err != nil {
			e := AsError(err, KindRegionSkipped)
			e.Region = i
			rejected = append(rejected, e)
			continue
		}
		n.Source = i
		accepted = append(accepted, n)
	}

	return accepted, rejected
}

// ParseRegions decodes a region payload. It accepts a JSON array of regions,
// a single region object (treated as a one-element list) or an object
// wrapping the list under "regions" or "locations".
func ParseRegions(data []byte) ([]RegionSpec, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, InputError("regions payload is empty", nil)
	}

	var specs []RegionSpec
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &specs); err != nil {
			return nil, InputError("invalid regions format", err)
		}
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return nil, InputError("invalid regions format", err)
		}
		for _, key := range []string{"regions", "locations"} {
			if inner, ok := probe[key]; ok {
				return ParseRegions(inner)
			}
		}
		var spec RegionSpec
		if err := json.Unmarshal(trimmed, &spec); err != nil {
			return nil, InputError("invalid regions format", err)
		}
		specs = []RegionSpec{spec}
	default:
		return nil, InputError("invalid regions format", fmt.Errorf("expected a JSON array or object"))
	}

	if len(specs) == 0 {
		return nil, InputError("no regions supplied", nil)
	}
	return specs, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
