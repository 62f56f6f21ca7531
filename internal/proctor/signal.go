package proctor

import "strings"

// Kind identifies a client-side integrity signal.
type Kind string

const (
	KindVisibilityLost Kind = "visibility_lost"
	KindCopy           Kind = "copy"
	KindCut            Kind = "cut"
	KindPaste          Kind = "paste"
	KindSelectAll      Kind = "select_all"
	KindPrint          Kind = "print"
	KindFind           Kind = "find"
	KindDevTools       Kind = "devtools"
	KindContextMenu    Kind = "context_menu"
	// KindUnload is advisory: the page is being left or reloaded.
	KindUnload Kind = "unload"
)

var knownKinds = map[Kind]bool{
	KindVisibilityLost: true,
	KindCopy:           true,
	KindCut:            true,
	KindPaste:          true,
	KindSelectAll:      true,
	KindPrint:          true,
	KindFind:           true,
	KindDevTools:       true,
	KindContextMenu:    true,
	KindUnload:         true,
}

// ParseKind accepts a client-reported signal name.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	return k, knownKinds[k]
}

// IsViolation reports whether the signal counts toward the tolerance.
func (k Kind) IsViolation() bool {
	return knownKinds[k] && k != KindUnload
}

// KeyPress describes a keyboard event as reported by the client.
type KeyPress struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl"`
	Meta  bool   `json:"meta"`
	Shift bool   `json:"shift"`
	Alt   bool   `json:"alt"`
}

// ClassifyShortcut maps a key combination to the signal it represents.
// Ordinary typing returns false.
func ClassifyShortcut(k KeyPress) (Kind, bool) {
	key := strings.ToLower(k.Key)

	if key == "f12" {
		return KindDevTools, true
	}

	mod := k.Ctrl || k.Meta
	if !mod {
		return "", false
	}

	// Inspector shortcuts: Ctrl+Shift+I/J/C, Cmd+Alt+I/J/C.
	if k.Shift || (k.Meta && k.Alt) {
		switch key {
		case "i", "j", "c":
			return KindDevTools, true
		}
	}

	switch key {
	case "c":
		return KindCopy, true
	case "x":
		return KindCut, true
	case "v":
		return KindPaste, true
	case "a":
		return KindSelectAll, true
	case "p":
		return KindPrint, true
	case "f":
		return KindFind, true
	case "u":
		return KindDevTools, true
	}
	return "", false
}
