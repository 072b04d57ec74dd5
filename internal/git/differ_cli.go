package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/filemode"
)

// EmptyTreeHash is the object id git reserves for the empty tree.
const EmptyTreeHash = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

type gitRawEntry struct {
	srcMode filemode.FileMode
	dstMode filemode.FileMode
	status  string // e.g. "M", "A", "D", "R100"
	path    string // destination path (or path for non-renames)
	oldPath string // source path for renames and copies
}

// diffTreeCLI runs git diff-tree between two trees with rename detection
// disabled and parses its NUL-separated raw output.
func diffTreeCLI(ctx context.Context, repoPath, fromTree, toTree string) ([]Change, error) {
	if fromTree == "" {
		fromTree = EmptyTreeHash
	}
	args := []string{
		"-C", repoPath,
		"diff-tree",
		"-r",
		"--raw", "-z",
		"--no-renames",
		fromTree, toTree,
	}

	out, err := exec.CommandContext(ctx, "git", args...).Output()
	if err != nil {
		var stderr string
		if ee, ok := err.(*exec.ExitError); ok {
			stderr = strings.TrimSpace(string(ee.Stderr))
		}
		return nil, fmt.Errorf("git diff-tree %s..%s failed: %w: %s", fromTree, toTree, err, stderr)
	}

	entries, _, err := parseGitRawEntries(out)
	if err != nil {
		return nil, err
	}

	changes := make([]Change, 0, len(entries))
	for _, e := range entries {
		changes = append(changes, changeFromRaw(e))
	}
	return changes, nil
}

func changeFromRaw(e gitRawEntry) Change {
	c := Change{OldMode: e.srcMode, NewMode: e.dstMode, Status: e.status}
	if e.status == "" {
		c.Kind = ChangeKindUnknown
		return c
	}
	switch e.status[0] {
	case 'A':
		c.Kind, c.NewPath = ChangeKindAdded, e.path
	case 'D':
		c.Kind, c.OldPath = ChangeKindDeleted, e.path
	case 'M', 'T':
		// A type change keeps the path; go-git reports it as a modification.
		c.Kind, c.OldPath, c.NewPath = ChangeKindModified, e.path, e.path
	case 'R':
		c.Kind, c.OldPath, c.NewPath = ChangeKindRenamed, e.oldPath, e.path
	case 'C':
		c.Kind, c.OldPath, c.NewPath = ChangeKindCopied, e.oldPath, e.path
	default:
		c.Kind, c.OldPath, c.NewPath = ChangeKindUnknown, e.path, e.path
	}
	return c
}

func parseGitRawEntries(body []byte) ([]gitRawEntry, int, error) {
	i := 0
	for i < len(body) && (body[i] == '\n' || body[i] == '\r') {
		i++
	}

	entries := make([]gitRawEntry, 0, 128)

	for i < len(body) && body[i] == ':' {
		meta, ok := readUntilNUL(body, &i)
		if !ok {
			return nil, 0, fmt.Errorf("unexpected git --raw format (missing NUL)")
		}

		fields := strings.Fields(string(meta))
		if len(fields) < 5 {
			return nil, 0, fmt.Errorf("unexpected git --raw meta: %q", string(meta))
		}

		srcMode, err := parseGitFileMode(strings.TrimPrefix(fields[0], ":"))
		if err != nil {
			return nil, 0, err
		}
		dstMode, err := parseGitFileMode(fields[1])
		if err != nil {
			return nil, 0, err
		}

		status := fields[len(fields)-1]

		path1, ok := readStringUntilNUL(body, &i)
		if !ok {
			return nil, 0, fmt.Errorf("unexpected git --raw format (missing path)")
		}

		path := path1
		oldPath := ""
		if len(status) > 0 && (status[0] == 'R' || status[0] == 'C') {
			path2, ok := readStringUntilNUL(body, &i)
			if !ok {
				return nil, 0, fmt.Errorf("unexpected git --raw format (missing rename path)")
			}
			oldPath = path1
			path = path2
		}

		entries = append(entries, gitRawEntry{
			srcMode: srcMode,
			dstMode: dstMode,
			status:  status,
			path:    path,
			oldPath: oldPath,
		})
	}

	return entries, i, nil
}

func parseGitFileMode(s string) (filemode.FileMode, error) {
	if s == "" {
		return filemode.Empty, nil
	}
	// Modes are printed as octal (e.g. 100644, 120000, 160000, 000000).
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return filemode.Empty, fmt.Errorf("parse file mode %q: %w", s, err)
	}
	return filemode.FileMode(v), nil
}

func readUntilNUL(b []byte, i *int) ([]byte, bool) {
	if *i >= len(b) {
		return nil, false
	}
	j := bytes.IndexByte(b[*i:], 0)
	if j == -1 {
		return nil, false
	}
	start := *i
	end := *i + j
	*i = end + 1
	return b[start:end], true
}

func readStringUntilNUL(b []byte, i *int) (string, bool) {
	raw, ok := readUntilNUL(b, i)
	if !ok {
		return "", false
	}
	return string(raw), true
}
