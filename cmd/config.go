package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/masmgr/harmony-go/config"
)

// ConfigCmd returns the config command.
func ConfigCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Write the effective configuration to a file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "write",
				Usage: "Destination path",
				Value: config.FileName,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			path := c.String("write")
			if err := config.SaveConfig(cfg, path); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "Configuration written to %s\n", path)
			return nil
		},
	}
}
