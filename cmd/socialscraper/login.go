package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Opens the session, waits for a manual login if needed, and saves it.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		env, err := openEnvironment(ctx, config)
		if err != nil {
			return err
		}
		defer env.close(ctx)
		return env.ensureLogin(ctx)
	},
}
