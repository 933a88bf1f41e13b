package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"upscan/internal/config"
	"upscan/internal/logging"
	"upscan/internal/services"
)

type commandContext struct {
	configFlag *string
	ticketFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	log        *slog.Logger
	runID      string
}

func newCommandContext(configFlag, ticketFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		ticketFlag: ticketFlag,
		runID:      uuid.NewString(),
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger builds the run logger on first use and prunes expired log files.
func (c *commandContext) logger() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.log = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg, c.runID)
		if err != nil {
			c.log = logging.NewNop()
			return
		}
		c.log = logger
		if pruned := logging.PruneLogs(logger, cfg.Logging.Dir, cfg.Logging.RetentionDays); pruned > 0 {
			logger.Debug("pruned expired logs", logging.Int("count", pruned))
		}
	})
	return c.log
}

func (c *commandContext) ticket() (string, error) {
	if c.ticketFlag == nil || strings.TrimSpace(*c.ticketFlag) == "" {
		return "", errors.New("--ticket is required")
	}
	return strings.TrimSpace(*c.ticketFlag), nil
}

// runContext annotates the command context with the ticket and run id used
// for log correlation and the X-Request-ID header.
func (c *commandContext) runContext(cmd *cobra.Command, ticket string) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = services.WithRequestID(ctx, c.runID)
	return services.WithTicketID(ctx, ticket)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}
