package git

import (
	"time"

	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/sirupsen/logrus"
)

// Signature identifies who authored or committed a commit, and when.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// Commit is the backend-neutral view of one commit.
type Commit struct {
	Hash      string
	Tree      string
	Parents   []string
	Author    Signature
	Committer Signature
	Message   string
}

// IsRoot reports whether the commit has no parents.
func (c Commit) IsRoot() bool {
	return len(c.Parents) == 0
}

// TagRef is one tag reference as stored in the repository.
type TagRef struct {
	Name   string // full reference name, e.g. refs/tags/v1.0
	Target string // object the reference points at
	Peeled string // fully peeled object for annotated tags, empty otherwise
}

// ChangeKind represents the type of change between two trees.
type ChangeKind int

const (
	ChangeKindUnknown ChangeKind = iota
	ChangeKindAdded
	ChangeKindDeleted
	ChangeKindModified
	ChangeKindCopied
	ChangeKindRenamed
)

// String returns a string representation of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeKindAdded:
		return "added"
	case ChangeKindModified:
		return "modified"
	case ChangeKindDeleted:
		return "deleted"
	case ChangeKindCopied:
		return "copied"
	case ChangeKindRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Change is one changed path between two trees.
type Change struct {
	Kind    ChangeKind
	OldPath string // empty for additions
	NewPath string // empty for deletions
	OldMode filemode.FileMode
	NewMode filemode.FileMode
	Status  string // raw status as reported by the differ, e.g. "M" or "R100"
}

// Path returns the path that identifies the change: the old path for
// deletions and the new path otherwise.
func (c Change) Path() string {
	if c.Kind == ChangeKindDeleted || c.NewPath == "" {
		return c.OldPath
	}
	return c.NewPath
}

// DifferMode selects how tree diffs are computed.
type DifferMode string

const (
	DifferNative DifferMode = "native" // in-process go-git tree diff
	DifferCLI    DifferMode = "cli"    // git diff-tree subprocess
)

// Options configures a Repository.
type Options struct {
	Differ  DifferMode
	Include []string // Glob patterns to include
	Exclude []string // Glob patterns to exclude
	Logger  logrus.FieldLogger
}
