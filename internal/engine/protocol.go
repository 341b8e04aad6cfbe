package engine

import (
	"errors"
	"fmt"
	"strings"
)

// CommandKind names an outbound verb.
type CommandKind string

const (
	CommandStart         CommandKind = "start"
	CommandIdentifyImage CommandKind = "identify image"
	CommandIdentifyVideo CommandKind = "identify video"
	CommandAdd           CommandKind = "add"
)

// Command is one outbound protocol line.
type Command struct {
	Kind     CommandKind
	Path     string
	RecordID string
	Paths    []string
}

// Start asks the engine to initialise.
func Start() Command { return Command{Kind: CommandStart} }

// IdentifyImage requests recognition on a still image.
func IdentifyImage(path string) Command {
	return Command{Kind: CommandIdentifyImage, Path: path}
}

// IdentifyVideo requests recognition on a video file.
func IdentifyVideo(path string) Command {
	return Command{Kind: CommandIdentifyVideo, Path: path}
}

// Add announces a newly registered subject and its photos.
func Add(recordID string, paths ...string) Command {
	return Command{Kind: CommandAdd, RecordID: recordID, Paths: paths}
}

// Verb is the first protocol token, used as a metrics label.
func (c Command) Verb() string {
	verb, _, _ := strings.Cut(string(c.Kind), " ")
	return verb
}

// Validate rejects commands that cannot be expressed on one line.
func (c Command) Validate() error {
	switch c.Kind {
	case CommandStart:
		return nil
	case CommandIdentifyImage, CommandIdentifyVideo:
		if strings.TrimSpace(c.Path) == "" {
			return errors.New("identify command requires a path")
		}
		return checkLineSafe(c.Path)
	case CommandAdd:
		if strings.TrimSpace(c.RecordID) == "" || strings.ContainsAny(c.RecordID, " \t") {
			return fmt.Errorf("add command requires a single-token record id, got %q", c.RecordID)
		}
		if len(c.Paths) == 0 {
			return errors.New("add command requires at least one path")
		}
		for _, p := range c.Paths {
			if strings.Contains(p, "&") {
				return fmt.Errorf("add path %q contains the path separator", p)
			}
			if err := checkLineSafe(p); err != nil {
				return err
			}
		}
		return checkLineSafe(c.RecordID)
	default:
		return fmt.Errorf("unknown command kind %q", c.Kind)
	}
}

// String encodes the command without its line terminator.
func (c Command) String() string {
	switch c.Kind {
	case CommandIdentifyImage, CommandIdentifyVideo:
		return string(c.Kind) + " " + c.Path
	case CommandAdd:
		return "add " + c.RecordID + " " + strings.Join(c.Paths, "&")
	default:
		return string(c.Kind)
	}
}

func checkLineSafe(s string) error {
	if strings.ContainsAny(s, "\r\n") {
		return fmt.Errorf("value %q contains a line break", s)
	}
	return nil
}

// EventKind tags a decoded inbound line.
type EventKind int

const (
	EventUnrecognized EventKind = iota
	EventIdentity
	EventAdded
)

func (k EventKind) String() string {
	switch k {
	case EventIdentity:
		return "identity"
	case EventAdded:
		return "added"
	default:
		return "unrecognized"
	}
}

// Event is one decoded inbound line. Value holds the subject or record id for
// Identity and Added events; Raw always holds the original line.
type Event struct {
	Kind  EventKind
	Value string
	Raw   string
}

var noMatchTokens = map[string]struct{}{
	"unknown":   {},
	"none":      {},
	"no_match":  {},
	"nomatch":   {},
	"not_found": {},
	"notfound":  {},
}

// ParseEvent decodes a line. It never fails: shapes it does not understand
// come back as EventUnrecognized.
func ParseEvent(line string) Event {
	raw := strings.TrimRight(line, "\r\n")
	fields := strings.Fields(raw)
	if len(fields) >= 2 {
		switch fields[0] {
		case "identity":
			return Event{Kind: EventIdentity, Value: fields[1], Raw: raw}
		case "added":
			return Event{Kind: EventAdded, Value: fields[1], Raw: raw}
		}
	}
	return Event{Kind: EventUnrecognized, Raw: raw}
}

// IsNoMatch reports whether an unrecognized line is the engine saying it
// could not identify anyone.
func (e Event) IsNoMatch() bool {
	if e.Kind != EventUnrecognized {
		return false
	}
	fields := strings.Fields(e.Raw)
	if len(fields) == 0 {
		return false
	}
	_, ok := noMatchTokens[strings.ToLower(fields[0])]
	return ok
}
