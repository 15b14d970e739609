package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sqlextract/internal/query"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and the query file, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.ErrOrStderr(), opts)
			if err != nil {
				return err
			}
			if _, err := query.Load(cfg.Query.SQLFilePath); err != nil {
				return fmt.Errorf("configuration is invalid: %s: %w", opts.cfgPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %s\n", opts.cfgPath)
			return nil
		},
	}
}
