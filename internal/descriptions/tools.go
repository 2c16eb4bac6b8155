package descriptions

import "sort"

// Tool descriptions with practical examples and use cases

const (
	PDFRedactFileDescription = `Permanently remove the content under rectangular regions of a PDF document.

**When to use:** A document inside the configured directory contains text, images or vector graphics that must not survive in the copy you hand out.

**Why it's useful:** Removal is destructive. Text and graphics under a region are deleted from the page content, not covered by a black box, and the output is checked for leftover text before it is written.

**Regions:** A JSON array of objects with page (zero-based), x0, y0, x1, y1 measured from the top-left corner of the page, and the page_width and page_height those coordinates were measured against. Numbers may be sent as strings. A single object or {"regions": [...]} is accepted as well.

**Strategies:**
• structural (default): rewrites the page content streams and keeps untouched text selectable
• rasterize: renders every affected page to an image at quality_dpi (max 600) and paints the regions white

**Examples:**
• Hide an account number: path "statements/march.pdf", regions [{"page":0,"x0":10,"y0":20,"x1":100,"y1":50,"page_width":612,"page_height":792}]
• Scanned contract: strategy "rasterize", quality_dpi 300
• Keep the original: output "redacted/march.pdf"

**Result:** The output path, the strategy that produced it, page and region counts, and warnings for regions that were skipped or finalization steps that failed.

**Best practices:** Check pdf_toolchain_status first when running on a new host; structural redaction needs qpdf and rasterization needs pdftoppm.`

	PDFToolchainStatusDescription = `Report the external tools the redactor depends on and which strategies they enable.

**When to use:** Before the first redaction on a host, or when a redaction fails with a strategy error.

**Why it's useful:** Shows the resolved path and version of qpdf and pdftoppm, whether the default strategy can run, and which strategies are available.

**Common workflows:**
1. Setup check: pdf_toolchain_status → install missing tools → pdf_toolchain_status
2. Troubleshooting: redaction fails → pdf_toolchain_status → pin the available strategy`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	"pdf_redact_file":      PDFRedactFileDescription,
	"pdf_toolchain_status": PDFToolchainStatusDescription,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns the registered tool names in sorted order
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
