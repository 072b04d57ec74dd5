package extract

import (
	"github.com/masmgr/harmony-go/internal/git"
	"github.com/masmgr/harmony-go/internal/model"
)

// Classification is the Action a change maps to and the path of its Item.
type Classification struct {
	Kind model.ActionKind
	Path string
}

// Classify maps a diff change to an Action kind and path. Renames and
// copies are creations of the new path; the old path of a rename gets no
// Action. Unknown kinds yield a warning instead of a classification.
func Classify(event string, c git.Change) (Classification, *ClassificationWarning) {
	switch c.Kind {
	case git.ChangeKindAdded:
		return Classification{Kind: model.ActionCreate, Path: c.NewPath}, nil
	case git.ChangeKindDeleted:
		return Classification{Kind: model.ActionDelete, Path: c.OldPath}, nil
	case git.ChangeKindModified:
		return Classification{Kind: model.ActionEdit, Path: c.NewPath}, nil
	case git.ChangeKindCopied, git.ChangeKindRenamed:
		return Classification{Kind: model.ActionCreate, Path: c.NewPath}, nil
	default:
		return Classification{}, &ClassificationWarning{
			Event:   event,
			Status:  c.Status,
			OldPath: c.OldPath,
			NewPath: c.NewPath,
		}
	}
}
