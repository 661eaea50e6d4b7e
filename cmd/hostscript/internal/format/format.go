// Package format renders CLI listings as tables or JSON.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/nfrund/hostscript/internal/hooks"
)

// Supported output formats.
const (
	Table = "table"
	JSON  = "json"
)

// EngineDisplay represents an engine for display purposes.
type EngineDisplay struct {
	Tag       string `json:"tag"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	Extension string `json:"extension,omitempty"`
}

// HookDisplay represents a hook for display purposes.
type HookDisplay struct {
	ID          string   `json:"id"`
	Event       string   `json:"event"`
	Script      string   `json:"script"`
	Extension   string   `json:"extension"`
	SearchPaths []string `json:"search_paths,omitempty"`
}

// Engines writes engines in the given format.
func Engines(w io.Writer, format string, engines []EngineDisplay) error {
	switch format {
	case JSON:
		return writeJSON(w, "engines", engines, len(engines))
	case Table:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TAG\tNAME\tVERSION\tEXTENSION")
		fmt.Fprintln(tw, "---\t----\t-------\t---------")
		for _, e := range engines {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Tag, e.Name, e.Version, orDash(e.Extension))
		}
		return tw.Flush()
	default:
		return unsupported(format)
	}
}

// Hooks writes hooks in the given format.
func Hooks(w io.Writer, format string, list []hooks.Hook) error {
	displays := make([]HookDisplay, len(list))
	for i, h := range list {
		displays[i] = HookDisplay{
			ID:          h.ID,
			Event:       h.EventName,
			Script:      h.ScriptPath,
			Extension:   h.ExtensionName,
			SearchPaths: h.SearchPaths,
		}
	}

	switch format {
	case JSON:
		return writeJSON(w, "hooks", displays, len(displays))
	case Table:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tEVENT\tEXTENSION\tSCRIPT")
		fmt.Fprintln(tw, "--\t-----\t---------\t------")
		if len(displays) == 0 {
			fmt.Fprintln(tw, "No hooks registered")
		}
		for _, h := range displays {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", h.ID, h.Event, h.Extension, truncateString(h.Script, 60))
		}
		return tw.Flush()
	default:
		return unsupported(format)
	}
}

func writeJSON(w io.Writer, key string, items any, count int) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]any{key: items, "count": count})
}

func unsupported(format string) error {
	return fmt.Errorf("unsupported output format '%s'. Use 'table' or 'json'", format)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString keeps the tail of long paths, where the file name is.
func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + strings.TrimLeft(s[len(s)-max+3:], "/\\")
}
