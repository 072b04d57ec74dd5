package git

import "testing"

func TestChangeKind_String(t *testing.T) {
	tests := []struct {
		name     string
		kind     ChangeKind
		expected string
	}{
		{name: "Added", kind: ChangeKindAdded, expected: "added"},
		{name: "Modified", kind: ChangeKindModified, expected: "modified"},
		{name: "Deleted", kind: ChangeKindDeleted, expected: "deleted"},
		{name: "Copied", kind: ChangeKindCopied, expected: "copied"},
		{name: "Renamed", kind: ChangeKindRenamed, expected: "renamed"},
		{name: "Unknown", kind: ChangeKindUnknown, expected: "unknown"},
		{name: "Out of range", kind: ChangeKind(99), expected: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.kind.String()
			if result != tt.expected {
				t.Errorf("String() = %q, expected %q", result, tt.expected)
			}
		})
	}
}

func TestChange_Path(t *testing.T) {
	tests := []struct {
		name     string
		change   Change
		expected string
	}{
		{name: "Added", change: Change{Kind: ChangeKindAdded, NewPath: "n"}, expected: "n"},
		{name: "Deleted", change: Change{Kind: ChangeKindDeleted, OldPath: "o"}, expected: "o"},
		{name: "Renamed", change: Change{Kind: ChangeKindRenamed, OldPath: "o", NewPath: "n"}, expected: "n"},
		{name: "Unknown without new path", change: Change{Kind: ChangeKindUnknown, OldPath: "o"}, expected: "o"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.change.Path(); got != tt.expected {
				t.Errorf("Path() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestCommit_IsRoot(t *testing.T) {
	if !(Commit{}).IsRoot() {
		t.Error("commit without parents should be root")
	}
	if (Commit{Parents: []string{"p"}}).IsRoot() {
		t.Error("commit with a parent should not be root")
	}
}
