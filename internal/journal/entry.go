package journal

import (
	"regexp"
	"strings"
)

// Kind tells internal host commands from external (scripted) ones.
type Kind string

const (
	KindInternal Kind = "internal"
	KindExternal Kind = "external"
)

// Entry is one journalled command.
type Entry struct {
	Kind Kind
	// CommandID is the host command id for internal commands and the ribbon
	// control id for external ones.
	CommandID   string
	Source      string
	Description string
	// ClassName is the implementing class of an external command.
	ClassName string
	Line      int
}

var (
	internalCommand = regexp.MustCompile(`^\s*Jrn\.Command\s+"([^"]*)"\s*,\s*"(.*)"\s*$`)
	externalCommand = regexp.MustCompile(`^\s*Jrn\.RibbonEvent\s+"Execute external command:([^:"]+):([^"]*)"\s*$`)
)

// ParseLine extracts a command entry from one journal line.
func ParseLine(line string) (Entry, bool) {
	if m := externalCommand.FindStringSubmatch(line); m != nil {
		return Entry{
			Kind:      KindExternal,
			CommandID: strings.TrimSpace(m[1]),
			Source:    "Ribbon",
			ClassName: strings.TrimSpace(m[2]),
		}, true
	}

	m := internalCommand.FindStringSubmatch(line)
	if m == nil {
		return Entry{}, false
	}
	// The quoted body is "<description> , <ID_COMMAND>".
	body := m[2]
	idx := strings.LastIndex(body, ",")
	if idx < 0 {
		return Entry{}, false
	}
	id := strings.TrimSpace(body[idx+1:])
	if id == "" {
		return Entry{}, false
	}
	return Entry{
		Kind:        KindInternal,
		CommandID:   id,
		Source:      m[1],
		Description: strings.TrimSpace(body[:idx]),
	}, true
}
