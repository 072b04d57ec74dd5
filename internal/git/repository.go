package git

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
	"github.com/sirupsen/logrus"

	"github.com/masmgr/harmony-go/internal/logging"
)

// Repository is a Backend over a local Git repository, read in-process
// with go-git. Tree diffs use go-git or the git CLI depending on
// Options.Differ.
type Repository struct {
	repo   *git.Repository
	path   string
	opts   Options
	filter *PathFilter
	logger logrus.FieldLogger
}

// Open opens the repository at path.
func Open(path string, opts Options) (*Repository, error) {
	filter, err := NewPathFilter(opts.Include, opts.Exclude)
	if err != nil {
		return nil, err
	}
	switch opts.Differ {
	case "":
		opts.Differ = DifferNative
	case DifferNative, DifferCLI:
	default:
		return nil, fmt.Errorf("unknown differ %q", opts.Differ)
	}

	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}
	return &Repository{repo: repo, path: path, opts: opts, filter: filter, logger: log}, nil
}

// Path returns the directory the repository was opened from.
func (r *Repository) Path() string {
	return r.path
}

func (r *Repository) Tags(ctx context.Context) ([]TagRef, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer iter.Close()

	var tags []TagRef
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if tag, ok := r.tagRef(ref); ok {
			tags = append(tags, tag)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

// tagRef describes ref. Tags whose objects are missing or cannot be
// decoded are reported as not ok.
func (r *Repository) tagRef(ref *plumbing.Reference) (TagRef, bool) {
	tag := TagRef{Name: ref.Name().String(), Target: ref.Hash().String()}
	skip := func(err error) (TagRef, bool) {
		if !errors.Is(err, plumbing.ErrObjectNotFound) {
			r.logger.WithFields(logrus.Fields{
				"tag":    tag.Name,
				"target": tag.Target,
			}).WithError(err).Warn("skipping unreadable tag")
		}
		return tag, false
	}

	obj, err := r.repo.Storer.EncodedObject(plumbing.AnyObject, ref.Hash())
	if err != nil {
		return skip(err)
	}
	if obj.Type() != plumbing.TagObject {
		return tag, true
	}

	// Annotated tag: follow tag objects down to the first non-tag target.
	h := ref.Hash()
	for {
		t, err := r.repo.TagObject(h)
		if err != nil {
			return skip(err)
		}
		if t.TargetType != plumbing.TagObject {
			tag.Peeled = t.Target.String()
			return tag, true
		}
		h = t.Target
	}
}

func (r *Repository) ResolveRef(_ context.Context, name string) (string, bool, error) {
	ref, err := r.repo.Reference(plumbing.ReferenceName(name), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve %s: %w", name, err)
	}

	c, err := r.peelToCommit(ref.Hash())
	if err != nil {
		return "", false, fmt.Errorf("resolve %s: %w", name, err)
	}
	return c.Hash.String(), true, nil
}

func (r *Repository) peelToCommit(h plumbing.Hash) (*object.Commit, error) {
	for {
		c, err := r.repo.CommitObject(h)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, err
		}
		t, terr := r.repo.TagObject(h)
		if terr != nil {
			return nil, fmt.Errorf("object %s is not a commit: %w", h, err)
		}
		h = t.Target
	}
}

func (r *Repository) Walk(ctx context.Context, from string, fn func(Commit) error) error {
	head, err := r.peelToCommit(plumbing.NewHash(from))
	if err != nil {
		return fmt.Errorf("walk from %s: %w", from, err)
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash})
	if err != nil {
		return fmt.Errorf("walk from %s: %w", from, err)
	}
	defer iter.Close()

	var commits []Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		commits = append(commits, toCommit(c))
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk from %s: %w", from, err)
	}

	ordered, err := topoOrder(commits)
	if err != nil {
		return fmt.Errorf("walk from %s: %w", from, err)
	}
	for _, c := range ordered {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func toCommit(c *object.Commit) Commit {
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return Commit{
		Hash:    c.Hash.String(),
		Tree:    c.TreeHash.String(),
		Parents: parents,
		Author: Signature{
			Name:  c.Author.Name,
			Email: c.Author.Email,
			When:  c.Author.When,
		},
		Committer: Signature{
			Name:  c.Committer.Name,
			Email: c.Committer.Email,
			When:  c.Committer.When,
		},
		Message: c.Message,
	}
}

func (r *Repository) Diff(ctx context.Context, fromTree, toTree string) ([]Change, error) {
	var (
		changes []Change
		err     error
	)
	if r.opts.Differ == DifferCLI {
		changes, err = diffTreeCLI(ctx, r.path, fromTree, toTree)
	} else {
		changes, err = r.diffTreeNative(ctx, fromTree, toTree)
	}
	if err != nil {
		return nil, err
	}
	return r.filter.Apply(changes), nil
}

func (r *Repository) tree(h string) (*object.Tree, error) {
	if h == "" {
		return nil, nil
	}
	t, err := r.repo.TreeObject(plumbing.NewHash(h))
	if err != nil {
		return nil, fmt.Errorf("load tree %s: %w", h, err)
	}
	return t, nil
}

func (r *Repository) diffTreeNative(ctx context.Context, fromTree, toTree string) ([]Change, error) {
	from, err := r.tree(fromTree)
	if err != nil {
		return nil, err
	}
	to, err := r.tree(toTree)
	if err != nil {
		return nil, err
	}

	diff, err := object.DiffTreeWithOptions(ctx, from, to, &object.DiffTreeOptions{DetectRenames: false})
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", fromTree, toTree, err)
	}

	changes := make([]Change, 0, len(diff))
	for _, ch := range diff {
		action, err := ch.Action()
		if err != nil {
			return nil, fmt.Errorf("diff %s..%s: %w", fromTree, toTree, err)
		}
		c := Change{
			OldPath: ch.From.Name,
			NewPath: ch.To.Name,
			OldMode: ch.From.TreeEntry.Mode,
			NewMode: ch.To.TreeEntry.Mode,
		}
		switch action {
		case merkletrie.Insert:
			c.Kind, c.Status = ChangeKindAdded, "A"
		case merkletrie.Delete:
			c.Kind, c.Status = ChangeKindDeleted, "D"
		case merkletrie.Modify:
			c.Kind, c.Status = ChangeKindModified, "M"
		default:
			c.Kind, c.Status = ChangeKindUnknown, action.String()
		}
		changes = append(changes, c)
	}
	return changes, nil
}
