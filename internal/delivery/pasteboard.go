package delivery

// Representation is one clipboard data flavor.
type Representation struct {
	Type string
	Data []byte
}

// Snapshot is an atomically captured clipboard state: every representation
// present at capture time plus the change counter observed.
type Snapshot struct {
	Representations []Representation
	ChangeCount     int64
}

// Empty reports whether the snapshot held no data.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Representations) == 0
}

// Text returns the plain-text representation if one was captured.
func (s *Snapshot) Text() (string, bool) {
	if s == nil {
		return "", false
	}
	for _, r := range s.Representations {
		if r.Type == TypeText {
			return string(r.Data), true
		}
	}
	return "", false
}

// TypeText is the canonical plain-text representation type. Platform
// pasteboards map their native identifiers onto it.
const TypeText = "text"

// Pasteboard abstracts the system clipboard. Implementations serialize
// access onto whatever thread the platform requires.
type Pasteboard interface {
	// Snapshot captures all representations and the current change count.
	Snapshot() (*Snapshot, error)
	// Restore writes a snapshot's representations back, replacing the
	// current contents. A nil or empty snapshot clears the clipboard.
	Restore(*Snapshot) error
	// WriteText replaces the clipboard contents with plain text.
	WriteText(text string) error
	// ReadText returns the current plain-text contents, if any.
	ReadText() (string, error)
	// ChangeCount returns the monotonic change counter. Platforms without
	// a native counter emulate one.
	ChangeCount() int64
}
