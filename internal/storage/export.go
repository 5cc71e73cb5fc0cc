package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExportMarkdown renders journal events as a markdown document.
func ExportMarkdown(title string, events []Event) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# %s\n\n", title))
	if len(events) == 0 {
		b.WriteString("No sandbox events recorded.\n")
		return b.String()
	}

	b.WriteString("| Time | Event | Project | Version | Container | Detail |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, e := range events {
		id := e.SandboxID
		if len(id) > 12 {
			id = id[:12]
		}
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | `%s` | %s |\n",
			e.At.Format("2006-01-02 15:04:05"), e.Kind, e.ProjectID, e.Version, id,
			strings.ReplaceAll(e.Detail, "|", `\|`)))
	}
	return b.String()
}

// ExportJSON renders journal events as formatted JSON.
func ExportJSON(events []Event) ([]byte, error) {
	export := struct {
		Count  int     `json:"count"`
		Events []Event `json:"events"`
	}{
		Count:  len(events),
		Events: events,
	}
	return json.MarshalIndent(export, "", "  ")
}

// ExportYAML renders journal events as YAML.
func ExportYAML(events []Event) ([]byte, error) {
	return yaml.Marshal(map[string]any{"events": events})
}
