package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/masmgr/harmony-go/internal/output"
)

// EventsCmd returns the events command.
func EventsCmd() *cli.Command {
	return &cli.Command{
		Name:   "events",
		Usage:  "List the extracted events of a source",
		Flags:  reportFlags(),
		Action: eventsAction,
	}
}

// ActionsCmd returns the actions command.
func ActionsCmd() *cli.Command {
	return &cli.Command{
		Name:   "actions",
		Usage:  "List the extracted actions of a source",
		Flags:  reportFlags(),
		Action: actionsAction,
	}
}

func eventsAction(c *cli.Context) error {
	return executeWithContext(c, nil, func(ctx *CommandContext) error {
		src, err := ctx.Source(c, c.String("source"))
		if err != nil {
			return err
		}
		events, err := ctx.Dao.GetEvents(c.Context, src)
		if err != nil {
			return err
		}
		return writeReport(c, func(w output.ReportWriter, opts output.OutputOptions) error {
			return w.WriteEvents(&output.EventReport{Source: src.Name, GeneratedAt: time.Now(), Events: events}, opts)
		})
	})
}

func actionsAction(c *cli.Context) error {
	return executeWithContext(c, nil, func(ctx *CommandContext) error {
		src, err := ctx.Source(c, c.String("source"))
		if err != nil {
			return err
		}
		actions, err := ctx.Dao.GetActions(c.Context, src)
		if err != nil {
			return err
		}
		return writeReport(c, func(w output.ReportWriter, opts output.OutputOptions) error {
			return w.WriteActions(&output.ActionReport{Source: src.Name, GeneratedAt: time.Now(), Actions: actions}, opts)
		})
	})
}
