// Package gittest builds throwaway Git repositories for tests.
package gittest

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo is a non-bare repository in a temporary directory. Every commit
// advances an internal clock by one minute so commit times are strictly
// increasing unless a test sets them explicitly.
type Repo struct {
	Dir  string
	Repo *gogit.Repository

	t     testing.TB
	wt    *gogit.Worktree
	clock time.Time
}

// Start is the committer time of the first commit made by a Repo.
var Start = time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)

// New initializes an empty repository on branch master.
func New(t testing.TB) *Repo {
	t.Helper()
	dir := t.TempDir()

	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	return &Repo{Dir: dir, Repo: repo, t: t, wt: wt, clock: Start}
}

// Write creates or overwrites rel and stages it.
func (r *Repo) Write(rel, content string) {
	r.t.Helper()
	full := filepath.Join(r.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		r.t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		r.t.Fatalf("WriteFile: %v", err)
	}
	if _, err := r.wt.Add(rel); err != nil {
		r.t.Fatalf("Add: %v", err)
	}
}

// Remove deletes rel from the worktree and the index.
func (r *Repo) Remove(rel string) {
	r.t.Helper()
	if _, err := r.wt.Remove(rel); err != nil {
		r.t.Fatalf("Remove: %v", err)
	}
}

// Commit records the staged changes as "Test <test@example.com>".
// Explicit parents turn the commit into a merge.
func (r *Repo) Commit(msg string, parents ...plumbing.Hash) plumbing.Hash {
	r.t.Helper()
	r.clock = r.clock.Add(time.Minute)
	return r.CommitAs("Test", "test@example.com", msg, r.clock, parents...)
}

// CommitAs records the staged changes with the given committer identity and
// time. The author is the same person one hour earlier.
func (r *Repo) CommitAs(name, email, msg string, when time.Time, parents ...plumbing.Hash) plumbing.Hash {
	r.t.Helper()
	h, err := r.wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  name,
			Email: email,
			When:  when.Add(-time.Hour),
		},
		Committer: &object.Signature{
			Name:  name,
			Email: email,
			When:  when,
		},
		Parents:           parents,
		AllowEmptyCommits: true,
	})
	if err != nil {
		r.t.Fatalf("Commit: %v", err)
	}
	return h
}

// Branch creates branch name at HEAD and checks it out.
func (r *Repo) Branch(name string) {
	r.t.Helper()
	err := r.wt.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Create: true,
	})
	if err != nil {
		r.t.Fatalf("Checkout -b %s: %v", name, err)
	}
}

// Checkout switches to an existing branch.
func (r *Repo) Checkout(name string) {
	r.t.Helper()
	err := r.wt.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
	})
	if err != nil {
		r.t.Fatalf("Checkout %s: %v", name, err)
	}
}

// Tag creates a lightweight tag, or an annotated one when message is not
// empty. Target may be a commit or another tag object.
func (r *Repo) Tag(name string, target plumbing.Hash, message string) plumbing.Hash {
	r.t.Helper()
	var opts *gogit.CreateTagOptions
	if message != "" {
		opts = &gogit.CreateTagOptions{
			Message: message,
			Tagger: &object.Signature{
				Name:  "Test",
				Email: "test@example.com",
				When:  r.clock,
			},
		}
	}
	ref, err := r.Repo.CreateTag(name, target, opts)
	if err != nil {
		r.t.Fatalf("CreateTag %s: %v", name, err)
	}
	return ref.Hash()
}

// SetRef points the reference name at h, creating it when missing.
func (r *Repo) SetRef(name string, h plumbing.Hash) {
	r.t.Helper()
	ref := plumbing.NewHashReference(plumbing.ReferenceName(name), h)
	if err := r.Repo.Storer.SetReference(ref); err != nil {
		r.t.Fatalf("SetReference %s: %v", name, err)
	}
}

// Tree returns the tree hash of commit h.
func (r *Repo) Tree(h plumbing.Hash) string {
	r.t.Helper()
	c, err := r.Repo.CommitObject(h)
	if err != nil {
		r.t.Fatalf("CommitObject %s: %v", h, err)
	}
	return c.TreeHash.String()
}

// WriteLooseObject stores body as a loose object of the given type name
// without validating it, so tests can plant objects go-git cannot decode.
func (r *Repo) WriteLooseObject(typ string, body []byte) plumbing.Hash {
	r.t.Helper()
	raw := append([]byte(fmt.Sprintf("%s %d\x00", typ, len(body))), body...)
	h := plumbing.Hash(sha1.Sum(raw))

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		r.t.Fatalf("compress object: %v", err)
	}
	if err := zw.Close(); err != nil {
		r.t.Fatalf("compress object: %v", err)
	}

	hex := h.String()
	dir := filepath.Join(r.Dir, ".git", "objects", hex[:2])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, hex[2:]), buf.Bytes(), 0o444); err != nil {
		r.t.Fatalf("WriteFile: %v", err)
	}
	return h
}
