package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	scraper "github.com/koizuka/socialscraper"
	"github.com/koizuka/socialscraper/internal/archive"
	"github.com/spf13/cobra"
)

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [target]",
	Short: "Lists archived runs, most recent first.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if config.Output.Archive == "" {
			return fmt.Errorf("no archive configured (output.archive)")
		}
		profileURL := ""
		if len(args) == 1 {
			target, err := scraper.NormalizeTarget(args[0], config.Session.BaseURL)
			if err != nil {
				return err
			}
			profileURL = target.URL()
		}

		db, err := archive.Open(config.Output.Archive)
		if err != nil {
			return err
		}
		defer db.Close()
		runs, err := db.List(cmd.Context(), profileURL, historyLimit)
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Run", "Target", "Started", "Took", "Errors", "Sections"})
		for _, run := range runs {
			var statuses []string
			for _, section := range run.Sections {
				statuses = append(statuses, fmt.Sprintf("%v:%v(%d)", section.Name, section.Status, section.Items))
			}
			t.AppendRow(table.Row{
				run.RunID,
				run.Target,
				run.StartedAt.Local().Format(time.DateTime),
				run.FinishedAt.Sub(run.StartedAt).Round(time.Second),
				run.Errors,
				strings.Join(statuses, "\n"),
			})
		}
		t.Render()
		return nil
	},
}
