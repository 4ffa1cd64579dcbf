package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	scraper "github.com/koizuka/socialscraper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
	headless   bool
)

var rootCmd = &cobra.Command{
	Use:   "socialscraper",
	Short: "socialscraper extracts profiles, posts and connections through a persistent browser session.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		}
	},
	SilenceUsage: true,
}

var logger = logrus.New()

func init() {
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "socialscraper.yaml", "Config file; <name>.local.yaml next to it overrides it.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output.")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", false, "Run the browser without a window (manual login and challenges need one).")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (scraper.Config, error) {
	config, err := scraper.LoadConfig(configFile, cmd.Flags().Changed("config"))
	if err != nil {
		return config, err
	}
	if cmd.Flags().Changed("headless") {
		config.Session.Headless = headless
	}
	return config, nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

// operatorSignals turns every line typed on stdin into a "proceed" signal. Lines typed
// while nobody is waiting are dropped.
func operatorSignals() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}()
	return ch
}

// manualLogin opens the login page and waits for the operator to press Enter.
func manualLogin(config scraper.Config, enter <-chan struct{}) scraper.ManualLogin {
	return scraper.ManualLoginFunc(func(ctx context.Context, browser scraper.Browser) error {
		if err := browser.Navigate(ctx, config.Session.BaseURL+"/login/"); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Log in in the browser window, then press Enter (waiting up to %v).\n", config.Session.LoginWait)
		timer := time.NewTimer(config.Session.LoginWait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-enter:
			return nil
		case <-timer.C:
			logger.Printf("login wait of %v elapsed, checking anyway", config.Session.LoginWait)
			return nil
		}
	})
}

// environment is everything a command needs to drive one session.
type environment struct {
	config     scraper.Config
	session    *scraper.Session
	checkpoint *scraper.CheckpointResolver
	enter      <-chan struct{}
}

func openEnvironment(ctx context.Context, config scraper.Config) (*environment, error) {
	rules, err := config.LoadRuleBook()
	if err != nil {
		return nil, err
	}
	var proxies scraper.EndpointPool
	if pool := config.ProxyPool(logger); pool != nil {
		proxies = pool
	}
	session, err := scraper.Open(ctx, config.SessionOptions(proxies), rules, logger)
	if err != nil {
		return nil, err
	}
	env := &environment{
		config:  config,
		session: session,
		enter:   operatorSignals(),
	}
	env.checkpoint = scraper.NewCheckpointResolver(session.Browser(), scraper.NewChallengeDetector(rules), config.CheckpointOptions(), logger)
	env.checkpoint.Resume = env.enter
	env.checkpoint.OnTransition = func(t scraper.Transition) {
		if t.To == scraper.CheckpointAwaitingManualResolution {
			fmt.Fprintf(os.Stderr, "Challenge %q detected. Solve it in the browser window, then press Enter.\n", t.Signature)
		}
	}
	return env, nil
}

func (env *environment) ensureLogin(ctx context.Context) error {
	state, err := env.session.EnsureLogin(ctx, manualLogin(env.config, env.enter), env.checkpoint)
	if err != nil {
		return err
	}
	logger.Printf("login state: %v", state)
	return nil
}

func (env *environment) close(ctx context.Context) {
	if err := env.session.Close(ctx); err != nil {
		logger.Printf("closing session: %v", err)
	}
}
