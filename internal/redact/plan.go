package redact

import (
	"fmt"
	"sort"
)

// Plan maps one-based page numbers to the rectangles to redact on that page.
// Pages absent from the plan are never touched.
type Plan map[int][]NormalizedRegion

// BuildPlan groups normalized regions by page. Input order is preserved
// within each page.
func BuildPlan(regions []NormalizedRegion) Plan {
	plan := make(Plan)
	for _, r := range regions {
		plan[r.Page] = append(plan[r.Page], r)
	}
	return plan
}

// Pages returns the planned page numbers in ascending order
func (p Plan) Pages() []int {
	pages := make([]int, 0, len(p))
	for page := range p {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	return pages
}

// Has reports whether the page is targeted by the plan
func (p Plan) Has(page int) bool {
	return len(p[page]) > 0
}

// Rects returns the rectangles planned for a page
func (p Plan) Rects(page int) []Rect {
	regions := p[page]
	rects := make([]Rect, len(regions))
	for i, r := range regions {
		rects[i] = r.Rect
	}
	return rects
}

// RegionCount returns the total number of rectangles in the plan
func (p Plan) RegionCount() int {
	n := 0
	for _, regions := range p {
		n += len(regions)
	}
	return n
}

// Restrict removes pages beyond pageCount, returning a RegionSkipped warning
// for every dropped region.
func (p Plan) Restrict(pageCount int) (Plan, []*Error) {
	kept := make(Plan, len(p))
	var skipped []*Error
	for _, page := range p.Pages() {
		if page >= 1 && page <= pageCount {
			kept[page] = p[page]
			continue
		}
		for _, r := range p[page] {
			skipped = append(skipped, RegionSkipped(r.Source, page,
				fmt.Sprintf("page %d does not exist (document has %d pages)", page, pageCount)))
		}
	}
	return kept, skipped
}

// Without returns a copy of the plan minus the given regions (by Source)
func (p Plan) Without(sources map[int]bool) Plan {
	out := make(Plan, len(p))
	for page, regions := range p {
		for _, r := range regions {
			if !sources[r.Source] {
				out[page] = append(out[page], r)
			}
		}
	}
	return out
}

// String returns a compact description for logging
func (p Plan) String() string {
	return fmt.Sprintf("%d region(s) on pages %v", p.RegionCount(), p.Pages())
}
