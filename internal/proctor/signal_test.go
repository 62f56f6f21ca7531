package proctor

import "testing"

func TestClassifyShortcut(t *testing.T) {
	tests := []struct {
		name string
		key  KeyPress
		want Kind
		ok   bool
	}{
		{"ctrl+c", KeyPress{Key: "c", Ctrl: true}, KindCopy, true},
		{"cmd+v", KeyPress{Key: "V", Meta: true}, KindPaste, true},
		{"ctrl+x", KeyPress{Key: "x", Ctrl: true}, KindCut, true},
		{"ctrl+a", KeyPress{Key: "a", Ctrl: true}, KindSelectAll, true},
		{"ctrl+p", KeyPress{Key: "p", Ctrl: true}, KindPrint, true},
		{"ctrl+f", KeyPress{Key: "f", Ctrl: true}, KindFind, true},
		{"ctrl+u", KeyPress{Key: "u", Ctrl: true}, KindDevTools, true},
		{"f12", KeyPress{Key: "F12"}, KindDevTools, true},
		{"ctrl+shift+i", KeyPress{Key: "I", Ctrl: true, Shift: true}, KindDevTools, true},
		{"ctrl+shift+c", KeyPress{Key: "c", Ctrl: true, Shift: true}, KindDevTools, true},
		{"cmd+alt+j", KeyPress{Key: "j", Meta: true, Alt: true}, KindDevTools, true},
		{"plain c", KeyPress{Key: "c"}, "", false},
		{"shift+a", KeyPress{Key: "a", Shift: true}, "", false},
		{"ctrl+z", KeyPress{Key: "z", Ctrl: true}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ClassifyShortcut(tt.key)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ClassifyShortcut(%+v) = (%q, %v), want (%q, %v)", tt.key, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	if k, ok := ParseKind(" Visibility_Lost "); !ok || k != KindVisibilityLost {
		t.Errorf("ParseKind() = (%q, %v)", k, ok)
	}
	if _, ok := ParseKind("mouse_move"); ok {
		t.Error("ParseKind(mouse_move) accepted an unknown signal")
	}
	if KindUnload.IsViolation() {
		t.Error("unload must not count as a violation")
	}
	if !KindContextMenu.IsViolation() {
		t.Error("context menu must count as a violation")
	}
}
