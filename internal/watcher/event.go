package watcher

import (
	"fmt"
	"time"
)

// Kind is the logical change a debounced event describes.
type Kind int

const (
	Created Kind = iota
	Modified
	Deleted
	Moved
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Moved:
		return "moved"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one debounced change. Dest is set for Moved. Dir marks the
// removal of a watched directory, whose catalogued files are all affected.
type Event struct {
	Kind Kind
	Path string
	Dest string
	Dir  bool
	At   time.Time
}

func (e Event) String() string {
	if e.Kind == Moved {
		return fmt.Sprintf("%s %s -> %s", e.Kind, e.Path, e.Dest)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.Path)
}
