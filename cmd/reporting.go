package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/masmgr/harmony-go/internal/output"
)

func writeReport(c *cli.Context, write func(output.ReportWriter, output.OutputOptions) error) error {
	opts, err := OutputOptions(c)
	if err != nil {
		return err
	}
	return write(output.NewReportWriter(opts.Format), opts)
}
