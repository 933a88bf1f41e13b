package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"upscan/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool
	var sample config.SampleOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file pointing at the intake collaborator",
		Long: "Create a configuration file. --initiate-url sets the endpoint that hands out upload sessions;\n" +
			"--status-url switches confirmation to status polling.",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveInitTarget(targetPath)
			if err != nil {
				return err
			}
			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target, sample); err != nil {
				return fmt.Errorf("create config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote configuration to %s\n", target)
			strategy := config.StrategyRedirect
			if strings.TrimSpace(sample.StatusURL) != "" {
				strategy = config.StrategyPolling
			}
			fmt.Fprintf(out, "Confirmation strategy: %s\n", strategy)
			if strings.TrimSpace(sample.InitiateURL) == "" {
				fmt.Fprintln(out, "Set intake.initiate_url (or export UPSCAN_INITIATE_URL) to point at your intake collaborator.")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	cmd.Flags().StringVar(&sample.InitiateURL, "initiate-url", "", "Session initiation endpoint ({ticket} is replaced with the ticket id)")
	cmd.Flags().StringVar(&sample.StatusURL, "status-url", "", "Upload status endpoint ({reference} is replaced); selects the polling strategy")
	return cmd
}

func resolveInitTarget(targetPath string) (string, error) {
	target := strings.TrimSpace(targetPath)
	if target == "" {
		defaultPath, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return defaultPath, nil
	}
	expanded, err := config.ExpandPath(target)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return expanded, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if ctx.configFlag != nil {
				path = strings.TrimSpace(*ctx.configFlag)
			}
			cfg, resolved, exists, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", resolved)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			writeRows(out, []string{"Setting", "Value"}, [][]string{
				{"intake.initiate_url", cfg.Intake.InitiateURL},
				{"intake.status_url", valueOrDash(cfg.Intake.StatusURL)},
				{"upload.strategy", cfg.Upload.Strategy},
				{"upload.max_files", fmt.Sprint(cfg.Upload.MaxFiles)},
				{"upload.one_at_a_time", yesNo(cfg.Upload.OneAtATime)},
				{"form.mode", cfg.Form.Mode},
				{"draft.enabled", yesNo(cfg.Draft.Enabled)},
				{"draft.path", cfg.Draft.Path},
			}, nil)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
