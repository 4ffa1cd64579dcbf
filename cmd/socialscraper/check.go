package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	scraper "github.com/koizuka/socialscraper"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Reports the saved session's login state and whether a challenge is showing.",
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

		state, err := env.session.ValidateLogin(ctx)
		if err != nil {
			return err
		}
		snapshot, err := env.session.Browser().Snapshot(ctx)
		if err != nil {
			return err
		}
		page, err := snapshot.Page(logger)
		if err != nil {
			return err
		}
		challenge := "none"
		if detection, found := env.checkpoint.Detector.Detect(page); found {
			challenge = fmt.Sprintf("%v (%v)", detection.Signature, detection.Evidence)
		}
		saved := env.session.State()

		t := newTable()
		t.AppendRows([]table.Row{
			{"Session", config.Session.Dir},
			{"Login state", state},
			{"Last validated", saved.LastValidated.Local().Format(time.DateTime)},
			{"Challenge", challenge},
			{"Page", page.Title()},
		})
		t.Render()
		if state != scraper.LoginLoggedIn {
			return fmt.Errorf("session is %v; run login first", state)
		}
		return nil
	},
}
