package git

import "context"

// Backend is the read-only view of a version-controlled repository used by
// the extraction pipeline.
type Backend interface {
	// Tags lists tag references ordered by name.
	Tags(ctx context.Context) ([]TagRef, error)
	// ResolveRef resolves a full reference name to a commit hash. A missing
	// reference yields ok == false and no error.
	ResolveRef(ctx context.Context, name string) (hash string, ok bool, err error)
	// Walk calls fn for every commit reachable from the commit hash from,
	// parents before children.
	Walk(ctx context.Context, from string, fn func(Commit) error) error
	// Diff lists the changes from tree fromTree to tree toTree. An empty
	// fromTree stands for the empty tree.
	Diff(ctx context.Context, fromTree, toTree string) ([]Change, error)
}

// Compile-time interface conformance checks.
var (
	_ Backend = (*Repository)(nil)
	_ Backend = (*MockBackend)(nil)
)
