package cmd

import (
	"regexp"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/masmgr/harmony-go/config"
	"github.com/masmgr/harmony-go/internal/analysis/hotspot"
	"github.com/masmgr/harmony-go/internal/output"
)

// HotspotsCmd returns the hotspots command.
func HotspotsCmd() *cli.Command {
	flags := append(reportFlags(),
		&cli.StringSliceFlag{
			Name:  "bugfix-pattern",
			Usage: "Regex identifying bugfix commit messages (can be specified multiple times)",
		},
		&cli.StringFlag{
			Name:    "words",
			Aliases: []string{"w"},
			Usage:   "Comma separated bugfix indicator words, e.g. \"fixes,closed\"",
		},
		&cli.IntFlag{
			Name:  "window-years",
			Usage: "Years of history to score, 0 for all",
		},
	)
	return &cli.Command{
		Name:    "hotspots",
		Aliases: []string{"hs"},
		Usage:   "Rank the items of a source by recent bugfix activity",
		Flags:   flags,
		Action:  hotspotsAction,
	}
}

func hotspotsAction(c *cli.Context) error {
	configure := func(cfg *config.Config) {
		if p := c.StringSlice("bugfix-pattern"); len(p) > 0 {
			cfg.Hotspots.Patterns = p
		}
		if w := c.String("words"); w != "" {
			cfg.Hotspots.Patterns = []string{wordsPattern(w)}
		}
		if c.IsSet("window-years") {
			cfg.Hotspots.WindowYears = c.Int("window-years")
		}
	}
	return executeWithContext(c, configure, func(ctx *CommandContext) error {
		src, err := ctx.Source(c, c.String("source"))
		if err != nil {
			return err
		}
		hc := ctx.Config.Hotspots
		analyzer, err := hotspot.NewAnalyzer(ctx.Dao, hotspot.Options{
			Patterns:    hc.Patterns,
			Max:         hc.Max,
			WindowYears: hc.WindowYears,
			BurstDays:   hc.BurstDays,
		}, ctx.Logger)
		if err != nil {
			return err
		}
		res, err := analyzer.Run(c.Context, src)
		if err != nil {
			return err
		}

		report := &output.HotspotReport{
			Source:      res.Source,
			Since:       res.Since,
			Until:       res.Until,
			GeneratedAt: time.Now(),
			Events:      res.Events,
			Fixes:       res.Fixes,
			Scores:      res.Scores,
		}
		return writeReport(c, func(w output.ReportWriter, opts output.OutputOptions) error {
			return w.WriteHotspots(report, opts)
		})
	})
}

// wordsPattern turns "fixes,closed" into a whole-word alternation.
func wordsPattern(words string) string {
	var parts []string
	for _, w := range strings.Split(words, ",") {
		if w = strings.TrimSpace(w); w != "" {
			parts = append(parts, regexp.QuoteMeta(w))
		}
	}
	return `\b(` + strings.Join(parts, "|") + `)\b`
}
