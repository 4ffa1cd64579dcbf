package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	scraper "github.com/koizuka/socialscraper"
	"github.com/koizuka/socialscraper/internal/archive"
	"github.com/spf13/cobra"
)

var (
	scrapeSections []string
	scrapeOutput   string
	scrapeSeed     uint64
)

func init() {
	scrapeCmd.Flags().StringSliceVarP(&scrapeSections, "sections", "s", nil,
		"Sections to extract (default from config): "+strings.Join(scraper.AllSections(), ","))
	scrapeCmd.Flags().StringVarP(&scrapeOutput, "output", "o", "", "Output directory (default from config).")
	scrapeCmd.Flags().Uint64Var(&scrapeSeed, "seed", 0, "Pacing seed; 0 picks one from the clock.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <target>...",
	Short: "Extracts one or more profiles (username, numeric id or URL) into JSON result documents.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if len(scrapeSections) > 0 {
			config.Sections = scrapeSections
		}
		if scrapeOutput != "" {
			config.Output.Dir = scrapeOutput
		}
		if err := config.Validate(); err != nil {
			return err
		}

		var targets []scraper.Target
		for _, arg := range args {
			target, err := scraper.NormalizeTarget(arg, config.Session.BaseURL)
			if err != nil {
				return err
			}
			targets = append(targets, target)
		}

		var db *archive.Archive
		if config.Output.Archive != "" {
			if db, err = archive.Open(config.Output.Archive); err != nil {
				return err
			}
			defer db.Close()
		}

		ctx := cmd.Context()
		env, err := openEnvironment(ctx, config)
		if err != nil {
			return err
		}
		defer env.close(ctx)
		if err := env.ensureLogin(ctx); err != nil {
			return err
		}

		seed := scrapeSeed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		s := scraper.NewScraper(env.session, env.checkpoint, scraper.NewPacer(config.Pacing, seed), config.Limits)
		s.Sections = config.Sections
		s.Log = logger

		for i, target := range targets {
			if i > 0 {
				if err := s.Extractor.Pacer.Pause(ctx, scraper.ActionBetweenSections); err != nil {
					return err
				}
			}
			document, runErr := s.Scrape(ctx, target)
			if err := save(context.WithoutCancel(ctx), config, db, target, document); err != nil {
				return err
			}
			if runErr != nil {
				if errors.Is(runErr, context.Canceled) {
					return fmt.Errorf("interrupted; partial results saved")
				}
				return runErr
			}
		}
		return nil
	},
}

func save(ctx context.Context, config scraper.Config, db *archive.Archive, target scraper.Target, document scraper.ResultDocument) error {
	filename := scraper.OutputFilename(config.Output.Dir, target, document)
	if err := scraper.WriteResult(filename, document); err != nil {
		return err
	}
	logger.Printf("wrote %v", filename)
	if db != nil {
		if err := db.Save(ctx, document); err != nil {
			logger.Printf("archive: %v", err)
		}
	}

	t := newTable()
	t.SetTitle(target.URL())
	t.AppendHeader(table.Row{"Section", "Status", "Items", "Omitted", "Error"})
	for _, section := range document.Sections() {
		t.AppendRow(table.Row{section.Name, section.Status, section.Items, section.Omitted, section.Error})
	}
	t.Render()
	return nil
}
