package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/masmgr/harmony-go/config"
	"github.com/masmgr/harmony-go/internal/dao"
	"github.com/masmgr/harmony-go/internal/logging"
	"github.com/masmgr/harmony-go/internal/model"
	"github.com/masmgr/harmony-go/internal/output"
	"github.com/masmgr/harmony-go/internal/store"
)

// CommandContext holds common state for command execution: the loaded
// configuration, the logger and an open store.
type CommandContext struct {
	Config *config.Config
	Logger *logrus.Logger
	Dao    dao.Dao
}

// NewCommandContext loads configuration, builds the logger and opens the
// configured store. Callers must Close it.
func NewCommandContext(c *cli.Context, configure func(*config.Config)) (*CommandContext, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if configure != nil {
		configure(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}

	log, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: c.App.ErrWriter,
	})
	if err != nil {
		return nil, err
	}

	d, err := store.Open(c.Context, cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return &CommandContext{Config: cfg, Logger: log, Dao: d}, nil
}

// Close releases the store.
func (ctx *CommandContext) Close() error {
	return ctx.Dao.Disconnect()
}

// Source looks up an extracted Source by name.
func (ctx *CommandContext) Source(c *cli.Context, name string) (*model.Source, error) {
	src, err := ctx.Dao.FindSource(c.Context, name)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("source %q not found, run extract first", name)
	}
	return src, nil
}

// executeWithContext runs fn with a CommandContext that is closed afterwards.
func executeWithContext(c *cli.Context, configure func(*config.Config), fn func(*CommandContext) error) (err error) {
	ctx, err := NewCommandContext(c, configure)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ctx.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(ctx)
}

// OutputOptions creates OutputOptions from CLI flags.
func OutputOptions(c *cli.Context) (output.OutputOptions, error) {
	format, err := getOutputFormat(c.String("format"))
	if err != nil {
		return output.OutputOptions{}, err
	}
	return output.OutputOptions{
		Format:     format,
		Top:        c.Int("top"),
		OutputPath: c.String("output"),
	}, nil
}
