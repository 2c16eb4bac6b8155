package toolchain

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Tool is an external program whose availability can be probed
type Tool interface {
	Name() string
	Binary() string
	Version(ctx context.Context) (string, error)
}

// ToolStatus is the typed result of probing one tool
type ToolStatus struct {
	Name      string `json:"name"`
	Path      string `json:"path,omitempty"`
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Health is the result of probing every tool
type Health struct {
	Tools     []ToolStatus `json:"tools"`
	CheckedAt time.Time    `json:"checked_at"`
}

// Tool returns the status of a named tool
func (h Health) Tool(name string) (ToolStatus, bool) {
	for _, t := range h.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolStatus{}, false
}

// Available reports whether every named tool is available
func (h Health) Available(names ...string) bool {
	for _, name := range names {
		if t, ok := h.Tool(name); !ok || !t.Available {
			return false
		}
	}
	return true
}

// Missing returns the named tools that are not available
func (h Health) Missing(names ...string) []string {
	var missing []string
	for _, name := range names {
		if t, ok := h.Tool(name); !ok || !t.Available {
			missing = append(missing, name)
		}
	}
	return missing
}

// Probe resolves a tool on PATH and asks for its version
func Probe(ctx context.Context, tool Tool) ToolStatus {
	status := ToolStatus{Name: tool.Name()}

	path, err := exec.LookPath(tool.Binary())
	if err != nil {
		status.Error = fmt.Sprintf("not found: %v", err)
		return status
	}
	status.Path = path

	version, err := tool.Version(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Available = true
	status.Version = version
	return status
}

// Check probes every tool
func Check(ctx context.Context, tools ...Tool) Health {
	health := Health{CheckedAt: time.Now()}
	for _, tool := range tools {
		health.Tools = append(health.Tools, Probe(ctx, tool))
	}
	return health
}
