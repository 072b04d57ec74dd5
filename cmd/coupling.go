package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/masmgr/harmony-go/config"
	"github.com/masmgr/harmony-go/internal/analysis/coupling"
	"github.com/masmgr/harmony-go/internal/output"
)

// CouplingCmd returns the coupling command.
func CouplingCmd() *cli.Command {
	flags := append(reportFlags(),
		&cli.IntFlag{
			Name:  "min-co-changes",
			Usage: "Minimum number of shared events to consider a coupling",
		},
		&cli.Float64Flag{
			Name:  "min-jaccard",
			Usage: "Minimum Jaccard coefficient threshold",
		},
		&cli.IntFlag{
			Name:  "max-files",
			Usage: "Maximum items per event to consider (skip sweeping changes)",
		},
		&cli.IntFlag{
			Name:  "top-pairs",
			Usage: "Number of top coupled pairs to store",
		},
	)

	return &cli.Command{
		Name:    "coupling",
		Aliases: []string{"cp"},
		Usage:   "Analyze which items of a source change together",
		Flags:   flags,
		Action:  couplingAction,
	}
}

func couplingAction(c *cli.Context) error {
	configure := func(cfg *config.Config) {
		cc := &cfg.Coupling
		if c.IsSet("min-co-changes") {
			cc.MinCoChanges = c.Int("min-co-changes")
		}
		if c.IsSet("min-jaccard") {
			cc.MinJaccard = c.Float64("min-jaccard")
		}
		if c.IsSet("max-files") {
			cc.MaxFilesPerEvent = c.Int("max-files")
		}
		if c.IsSet("top-pairs") {
			cc.TopPairs = c.Int("top-pairs")
		}
	}
	return executeWithContext(c, configure, func(ctx *CommandContext) error {
		src, err := ctx.Source(c, c.String("source"))
		if err != nil {
			return err
		}
		cc := ctx.Config.Coupling
		analyzer := coupling.NewAnalyzer(ctx.Dao, coupling.Options{
			MinCoChanges:     cc.MinCoChanges,
			MinJaccard:       cc.MinJaccard,
			MaxFilesPerEvent: cc.MaxFilesPerEvent,
			TopPairs:         cc.TopPairs,
		}, ctx.Logger)
		res, err := analyzer.Run(c.Context, src)
		if err != nil {
			return err
		}

		report := &output.CouplingReport{Source: src.Name, GeneratedAt: time.Now(), Result: res}
		return writeReport(c, func(w output.ReportWriter, opts output.OutputOptions) error {
			return w.WriteCoupling(report, opts)
		})
	})
}
