package redact

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionSpec_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		spec     RegionSpec
		wantPage int
		want     Rect
		wantErr  bool
	}{
		{
			name:     "scenario A rectangle",
			spec:     RegionSpec{Page: 0, X0: 10, Y0: 20, X1: 100, Y1: 50, PageHeight: 792, PageWidth: 612},
			wantPage: 1,
			want:     Rect{MinX: 10, MinY: 742, MaxX: 100, MaxY: 772},
		},
		{
			name:     "unordered coordinates",
			spec:     RegionSpec{Page: 2, X0: 100, Y0: 50, X1: 10, Y1: 20, PageHeight: 792, PageWidth: 612},
			wantPage: 3,
			want:     Rect{MinX: 10, MinY: 742, MaxX: 100, MaxY: 772},
		},
		{
			name:     "clamped to page",
			spec:     RegionSpec{Page: 0, X0: -20, Y0: -10, X1: 700, Y1: 900, PageHeight: 792, PageWidth: 612},
			wantPage: 1,
			want:     Rect{MinX: 0, MinY: 0, MaxX: 612, MaxY: 792},
		},
		{
			name:    "zero width",
			spec:    RegionSpec{Page: 0, X0: 10, Y0: 20, X1: 10, Y1: 50, PageHeight: 792, PageWidth: 612},
			wantErr: true,
		},
		{
			name:    "zero height",
			spec:    RegionSpec{Page: 0, X0: 10, Y0: 20, X1: 30, Y1: 20, PageHeight: 792, PageWidth: 612},
			wantErr: true,
		},
		{
			name:    "entirely off page collapses",
			spec:    RegionSpec{Page: 0, X0: 700, Y0: 20, X1: 800, Y1: 50, PageHeight: 792, PageWidth: 612},
			wantErr: true,
		},
		{
			name:    "missing page height",
			spec:    RegionSpec{Page: 0, X0: 10, Y0: 20, X1: 100, Y1: 50, PageWidth: 612},
			wantErr: true,
		},
		{
			name:    "negative page width",
			spec:    RegionSpec{Page: 0, X0: 10, Y0: 20, X1: 100, Y1: 50, PageHeight: 792, PageWidth: -1},
			wantErr: true,
		},
		{
			name:    "negative page index",
			spec:    RegionSpec{Page: -1, X0: 10, Y0: 20, X1: 100, Y1: 50, PageHeight: 792, PageWidth: 612},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.spec.Normalize()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, KindRegionSkipped, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, got.Page)
			assert.InDelta(t, tt.want.MinX, got.MinX, 1e-9)
			assert.InDelta(t, tt.want.MinY, got.MinY, 1e-9)
			assert.InDelta(t, tt.want.MaxX, got.MaxX, 1e-9)
			assert.InDelta(t, tt.want.MaxY, got.MaxY, 1e-9)
		})
	}
}

func TestRegionSpec_NormalizeStaysWithinPage(t *testing.T) {
	const h, w = 842.0, 595.0
	values := []float64{-1000, -1, 0, 0.5, 10, 300, 594.9, 595, 841, 842, 843, 5000}

	for _, x0 := range values {
		for _, y0 := range values {
			spec := RegionSpec{X0: x0, X1: x0 + 37, Y0: y0, Y1: y0 + 91, PageHeight: h, PageWidth: w}
			got, err := spec.Normalize()
			if err != nil {
				continue
			}
			assert.GreaterOrEqual(t, got.MinY, 0.0)
			assert.LessOrEqual(t, got.MaxY, h)
			assert.GreaterOrEqual(t, got.MinX, 0.0)
			assert.LessOrEqual(t, got.MaxX, w)
		}
	}
}

func TestRegionSpec_NormalizeIdempotent(t *testing.T) {
	spec := RegionSpec{Page: 1, X0: -5, Y0: 700, X1: 250, Y1: 900, PageHeight: 792, PageWidth: 612}
	first, err := spec.Normalize()
	require.NoError(t, err)

	// feed the output bounds back in the caller's convention
	again := RegionSpec{
		Page:       first.Page - 1,
		X0:         first.MinX,
		X1:         first.MaxX,
		Y0:         spec.PageHeight - first.MaxY,
		Y1:         spec.PageHeight - first.MinY,
		PageHeight: spec.PageHeight,
		PageWidth:  spec.PageWidth,
	}
	second, err := again.Normalize()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRegionSpec_UnmarshalJSON(t *testing.T) {
	t.Run("numeric strings accepted", func(t *testing.T) {
		var spec RegionSpec
		require.NoError(t, json.Unmarshal([]byte(`{"page":"1","x0":"10","x1":20,"y0":5,"y1":"15.5","page_height":"792","page_width":612}`), &spec))
		got, err := spec.Normalize()
		require.NoError(t, err)
		assert.Equal(t, 2, got.Page)
		assert.InDelta(t, 776.5, got.MinY, 1e-9)
	})

	t.Run("camelCase dimensions accepted", func(t *testing.T) {
		var spec RegionSpec
		require.NoError(t, json.Unmarshal([]byte(`{"page":0,"x0":10,"x1":20,"y0":5,"y1":15,"pageHeight":792,"pageWidth":612}`), &spec))
		_, err := spec.Normalize()
		assert.NoError(t, err)
	})

	t.Run("missing page defaults to first page", func(t *testing.T) {
		var spec RegionSpec
		require.NoError(t, json.Unmarshal([]byte(`{"x0":10,"x1":20,"y0":5,"y1":15,"page_height":792,"page_width":612}`), &spec))
		got, err := spec.Normalize()
		require.NoError(t, err)
		assert.Equal(t, 1, got.Page)
	})

	t.Run("missing page height rejected not defaulted", func(t *testing.T) {
		var spec RegionSpec
		require.NoError(t, json.Unmarshal([]byte(`{"page":0,"x0":10,"x1":20,"y0":5,"y1":15,"page_width":612}`), &spec))
		_, err := spec.Normalize()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing page_height")
	})

	t.Run("non-numeric width rejected", func(t *testing.T) {
		var spec RegionSpec
		require.NoError(t, json.Unmarshal([]byte(`{"page":0,"x0":10,"x1":20,"y0":5,"y1":15,"page_height":792,"page_width":"wide"}`), &spec))
		_, err := spec.Normalize()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "page_width is not numeric")
	})

	t.Run("fractional page rejected", func(t *testing.T) {
		var spec RegionSpec
		require.NoError(t, json.Unmarshal([]byte(`{"page":1.5,"x0":10,"x1":20,"y0":5,"y1":15,"page_height":792,"page_width":612}`), &spec))
		_, err := spec.Normalize()
		assert.Error(t, err)
	})

	t.Run("undecodable page reported as page 0", func(t *testing.T) {
		tests := []struct {
			name string
			page string
		}{
			{"non-numeric", `"abc"`},
			{"negative", `-2`},
			{"negative string", `"-1"`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var spec RegionSpec
				require.NoError(t, json.Unmarshal([]byte(`{"page":`+tt.page+`,"x0":10,"x1":20,"y0":5,"y1":15,"page_height":792,"page_width":612}`), &spec))
				_, err := spec.Normalize()
				var re *Error
				require.ErrorAs(t, err, &re)
				assert.Equal(t, KindRegionSkipped, re.Kind)
				assert.Equal(t, 0, re.Page)
			})
		}
	})

	t.Run("bad geometry keeps the decoded page", func(t *testing.T) {
		var spec RegionSpec
		require.NoError(t, json.Unmarshal([]byte(`{"page":2,"x0":10,"x1":20,"y0":5,"y1":15,"page_height":792,"page_width":"wide"}`), &spec))
		_, err := spec.Normalize()
		var re *Error
		require.ErrorAs(t, err, &re)
		assert.Equal(t, 3, re.Page)
	})

	t.Run("non-object rejected", func(t *testing.T) {
		var spec RegionSpec
		assert.Error(t, json.Unmarshal([]byte(`42`), &spec))
	})
}

func TestNormalizeAll(t *testing.T) {
	specs := []RegionSpec{
		{Page: 0, X0: 10, Y0: 20, X1: 100, Y1: 50, PageHeight: 792, PageWidth: 612},
		{Page: 0, X0: 10, Y0: 20, X1: 10, Y1: 50, PageHeight: 792, PageWidth: 612},
		{Page: 2, X0: 0, Y0: 0, X1: 50, Y1: 50, PageHeight: 792, PageWidth: 612},
	}

	accepted, rejected := NormalizeAll(specs)
	require.Len(t, accepted, 2)
	require.Len(t, rejected, 1)

	assert.Equal(t, 0, accepted[0].Source)
	assert.Equal(t, 2, accepted[1].Source)
	assert.Equal(t, 1, rejected[0].Region)
	assert.Equal(t, 1, rejected[0].Page)
	assert.False(t, rejected[0].Kind.IsFatal())
}

func TestParseRegions(t *testing.T) {
	const region = `{"page":0,"x0":10,"y0":20,"x1":100,"y1":50,"page_height":792,"page_width":612}`

	tests := []struct {
		name    string
		payload string
		wantLen int
		wantErr bool
	}{
		{name: "array", payload: "[" + region + "," + region + "]", wantLen: 2},
		{name: "single object", payload: region, wantLen: 1},
		{name: "locations wrapper", payload: `{"locations":[` + region + `]}`, wantLen: 1},
		{name: "regions wrapper with single object", payload: `{"regions":` + region + `}`, wantLen: 1},
		{name: "padded", payload: "\n  " + region + "  \n", wantLen: 1},
		{name: "empty", payload: "  ", wantErr: true},
		{name: "empty array", payload: "[]", wantErr: true},
		{name: "malformed json", payload: `[{"page":0,`, wantErr: true},
		{name: "scalar", payload: `"nope"`, wantErr: true},
		{name: "array of scalars", payload: `[1,2]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs, err := ParseRegions([]byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, KindInput, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Len(t, specs, tt.wantLen)
		})
	}
}

func TestRect_Intersects(t *testing.T) {
	r := Rect{MinX: 10, MinY: 10, MaxX: 20, MaxY: 20}

	assert.True(t, r.Intersects(Rect{MinX: 15, MinY: 15, MaxX: 30, MaxY: 30}))
	assert.False(t, r.Intersects(Rect{MinX: 20, MinY: 0, MaxX: 25, MaxY: 5}))
	assert.True(t, r.Intersects(Rect{MinX: 20, MinY: 20, MaxX: 25, MaxY: 25}), "touching corner is inclusive")
	assert.True(t, r.Intersects(Rect{MinX: 0, MinY: 12, MaxX: 10, MaxY: 14}), "touching edge is inclusive")
	assert.False(t, r.Intersects(Rect{MinX: 21, MinY: 21, MaxX: 25, MaxY: 25}))
}
