package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/masmgr/harmony-go/config"
	"github.com/masmgr/harmony-go/internal/extract"
	"github.com/masmgr/harmony-go/internal/git"
	"github.com/masmgr/harmony-go/internal/model"
)

// ExtractCmd returns the extract command.
func ExtractCmd() *cli.Command {
	return &cli.Command{
		Name:    "extract",
		Aliases: []string{"x"},
		Usage:   "Extract one repository, or every configured source, into the store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				Aliases: []string{"r"},
				Usage:   "Path to Git repository (default: configured sources)",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Source name (default: repository directory name)",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Events processed concurrently",
			},
			&cli.StringFlag{
				Name:  "differ",
				Usage: "Tree differ (native, cli)",
			},
			&cli.StringSliceFlag{
				Name:  "ref",
				Usage: "Head candidate ref, tried in order (can be specified multiple times)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Glob patterns to include (can be specified multiple times)",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Glob patterns to exclude (can be specified multiple times)",
			},
		},
		Action: extractAction,
	}
}

func applyExtractFlags(c *cli.Context) func(*config.Config) {
	return func(cfg *config.Config) {
		ex := &cfg.Extraction
		if c.IsSet("workers") {
			ex.Workers = c.Int("workers")
		}
		if v := c.String("differ"); v != "" {
			ex.Differ = v
		}
		if refs := c.StringSlice("ref"); len(refs) > 0 {
			ex.Refs = refs
		}
		if includes := c.StringSlice("include"); len(includes) > 0 {
			ex.Include = includes
		}
		if excludes := c.StringSlice("exclude"); len(excludes) > 0 {
			ex.Exclude = excludes
		}
	}
}

func extractAction(c *cli.Context) error {
	return executeWithContext(c, applyExtractFlags(c), func(ctx *CommandContext) error {
		ex := ctx.Config.Extraction
		x := extract.NewExtractor(ctx.Dao, extract.Options{Workers: ex.Workers, Refs: ex.Refs}, ctx.Logger)
		open := func(path string) (git.Backend, error) {
			return git.Open(path, git.Options{
				Differ:  git.DifferMode(ex.Differ),
				Include: ex.Include,
				Exclude: ex.Exclude,
				Logger:  ctx.Logger,
			})
		}

		var specs []extract.SourceSpec
		if repo := c.String("repo"); repo != "" {
			name, err := sourceName(c.String("name"), repo)
			if err != nil {
				return err
			}
			specs = append(specs, extract.SourceSpec{Name: name, Path: repo})
		} else {
			for _, s := range ctx.Config.Sources {
				specs = append(specs, extract.SourceSpec{Name: s.Name, Path: s.Path})
			}
		}
		if len(specs) == 0 {
			return fmt.Errorf("nothing to extract: pass --repo or configure sources")
		}

		var (
			sums []*extract.Summary
			err  error
		)
		if len(specs) == 1 {
			var backend git.Backend
			backend, err = open(specs[0].Path)
			if err != nil {
				return fmt.Errorf("failed to open repository: %w", err)
			}
			var sum *extract.Summary
			sum, err = x.Run(c.Context, &model.Source{Name: specs[0].Name, Path: specs[0].Path}, backend)
			sums = []*extract.Summary{sum}
		} else {
			sums, err = x.RunSources(c.Context, specs, open)
		}
		for _, sum := range sums {
			if sum != nil {
				printSummary(c.App.Writer, sum)
			}
		}
		return err
	})
}

// sourceName defaults the Source name to the repository directory.
func sourceName(name, repo string) (string, error) {
	if name != "" {
		return name, nil
	}
	abs, err := filepath.Abs(repo)
	if err != nil {
		return "", err
	}
	return filepath.Base(abs), nil
}

func printSummary(w io.Writer, sum *extract.Summary) {
	color.New(color.FgGreen, color.Bold).Fprintf(w, "Extracted %s\n", sum.Source)
	if sum.Head == "" {
		color.New(color.FgYellow).Fprintln(w, "  no head reference found")
		return
	}
	fmt.Fprintf(w, "  head:     %s\n", sum.Head)
	fmt.Fprintf(w, "  events:   %d (%d new)\n", sum.Events, sum.NewEvents)
	fmt.Fprintf(w, "  actions:  %d\n", sum.Actions)
	if n := len(sum.Warnings); n > 0 {
		color.New(color.FgYellow).Fprintf(w, "  warnings: %d unclassified changes\n", n)
	}
	fmt.Fprintf(w, "  duration: %s\n", sum.Duration.Round(time.Millisecond))
}
