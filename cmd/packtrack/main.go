// Command packtrack tracks shipments from carrier tracking URLs.
//
// Without a subcommand it tracks every stored URL and prints a report.
// The serve subcommand exposes the same tracking pipeline over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/packtrack/internal/app"
	"github.com/noah-isme/packtrack/internal/config"
	"github.com/noah-isme/packtrack/internal/dispatch"
	"github.com/noah-isme/packtrack/internal/obs"
	"github.com/noah-isme/packtrack/internal/report"
	"github.com/noah-isme/packtrack/internal/settings"
	"github.com/noah-isme/packtrack/internal/tracker"
	"github.com/noah-isme/packtrack/internal/urls"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load configuration:", err)
		os.Exit(1)
	}

	var logger zerolog.Logger

	rootCmd := &cobra.Command{
		Use:          "packtrack",
		Short:        "Track shipments from carrier tracking URLs",
		Long:         "packtrack resolves carrier tracking URLs to shipment status and\ncaches raw carrier responses between runs.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
				cfg.LogLevel = lvl
			}
			if format, _ := cmd.Flags().GetString("log-format"); format != "" {
				cfg.LogFormat = format
			}
			logger = obs.NewLogger(cfg.LogFormat, cfg.LogLevel)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrackStored(cmd, cfg, logger)
		},
	}
	rootCmd.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: console or json")
	addTrackFlags(rootCmd)

	trackCmd := &cobra.Command{
		Use:   "track <url>...",
		Short: "Track the given tracking URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrack(cmd, cfg, logger, args)
		},
	}
	addTrackFlags(trackCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tracking HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(*cobra.Command, []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(trackCmd, urlCommand(cfg), configCommand(cfg), serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// addTrackFlags registers the flags shared by the root command and "track".
func addTrackFlags(cmd *cobra.Command) {
	cmd.Flags().String("sender", "", "only report packages whose sender contains this text")
	cmd.Flags().String("recipient", "", "only report packages whose recipient contains this text")
	cmd.Flags().String("carrier", "", "only report packages whose carrier contains this text")
	cmd.Flags().Bool("no-cache", false, "bypass the response cache for this run")
	cmd.Flags().String("postcode", "", "recipient postcode sent to carriers that use it")
	cmd.Flags().String("language", "", "preferred language for carrier responses")
	cmd.Flags().Int("cache-seconds", -1, "maximum age in seconds for reusing in-transit responses (-1 uses the settings value)")
}

type trackOptions struct {
	filters      dispatch.Filters
	noCache      bool
	postcode     string
	language     string
	cacheSeconds int
}

func trackOptionsFrom(cmd *cobra.Command) trackOptions {
	var opts trackOptions
	opts.filters.Sender, _ = cmd.Flags().GetString("sender")
	opts.filters.Recipient, _ = cmd.Flags().GetString("recipient")
	opts.filters.Carrier, _ = cmd.Flags().GetString("carrier")
	opts.noCache, _ = cmd.Flags().GetBool("no-cache")
	opts.postcode, _ = cmd.Flags().GetString("postcode")
	opts.language, _ = cmd.Flags().GetString("language")
	opts.cacheSeconds, _ = cmd.Flags().GetInt("cache-seconds")
	return opts
}

func runTrackStored(cmd *cobra.Command, cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	sets, err := c.Settings.Load()
	if err != nil {
		return err
	}
	list, err := (&urls.File{Path: sets.URLsFile}).Load()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println(`no tracking urls stored; add one with "packtrack url add <url>"`)
		return nil
	}
	return trackAndReport(ctx, c, sets, list, trackOptionsFrom(cmd))
}

func runTrack(cmd *cobra.Command, cfg *config.Config, logger zerolog.Logger, list []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	sets, err := c.Settings.Load()
	if err != nil {
		return err
	}
	return trackAndReport(ctx, c, sets, list, trackOptionsFrom(cmd))
}

func trackAndReport(ctx context.Context, c *app.Container, sets settings.Settings, list []string, opts trackOptions) error {
	tc, pol := runParams(sets, opts)
	batch, saveErr := c.Dispatcher.TrackAll(ctx, list, tc, pol)

	results := batch.Results
	if !opts.filters.Empty() {
		results = opts.filters.Apply(results)
	}
	if out := report.Render(results); out != "" {
		fmt.Print(out)
	}

	if saveErr != nil {
		return saveErr
	}
	if n := failedCount(batch.Results); n > 0 {
		return fmt.Errorf("%d of %d packages failed", n, len(batch.Results))
	}
	return nil
}

// runParams merges the settings file with per-run flag overrides.
func runParams(sets settings.Settings, opts trackOptions) (tracker.Context, dispatch.Policy) {
	tc := tracker.Context{
		RecipientPostcode: sets.Postcode,
		Language:          sets.Language,
	}
	if opts.postcode != "" {
		tc.RecipientPostcode = opts.postcode
	}
	if opts.language != "" {
		tc.Language = opts.language
	}

	pol := dispatch.Policy{
		UseCache: sets.UseCache,
		MaxAge:   time.Duration(sets.CacheSeconds) * time.Second,
	}
	if opts.cacheSeconds >= 0 {
		pol.MaxAge = time.Duration(opts.cacheSeconds) * time.Second
	}
	if opts.noCache {
		pol.UseCache = false
	}
	return tc, pol
}

func failedCount(results []dispatch.Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

func urlCommand(cfg *config.Config) *cobra.Command {
	urlCmd := &cobra.Command{
		Use:   "url",
		Short: "Manage the stored tracking URLs",
	}

	addCmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Store a tracking URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			f, err := urlFile(cfg)
			if err != nil {
				return err
			}
			added, err := f.Add(args[0])
			if err != nil {
				return err
			}
			if !added {
				fmt.Printf("already stored: %s\n", args[0])
				return nil
			}
			fmt.Printf("added %s\n", args[0])
			return nil
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <substring>",
		Short: "Remove stored URLs containing a substring",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			f, err := urlFile(cfg)
			if err != nil {
				return err
			}
			removed, err := f.Remove(args[0])
			if err != nil {
				return err
			}
			if len(removed) == 0 {
				fmt.Printf("no stored urls match %q\n", args[0])
				return nil
			}
			for _, u := range removed {
				fmt.Printf("removed %s\n", u)
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the stored tracking URLs",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			f, err := urlFile(cfg)
			if err != nil {
				return err
			}
			list, err := f.Load()
			if err != nil {
				return err
			}
			for _, u := range list {
				fmt.Println(u)
			}
			return nil
		},
	}

	urlCmd.AddCommand(addCmd, removeCmd, listCmd)
	return urlCmd
}

func configCommand(cfg *config.Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change the settings file",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print all settings",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			store, err := settingsStore(cfg)
			if err != nil {
				return err
			}
			sets, err := store.Load()
			if err != nil {
				return err
			}
			for _, kv := range sets.List() {
				fmt.Printf("%s = %s\n", kv.Key, kv.Value)
			}
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := settingsStore(cfg)
			if err != nil {
				return err
			}
			sets, err := store.Set(args[0], args[1])
			if err != nil {
				return err
			}
			for _, kv := range sets.List() {
				if kv.Key == args[0] {
					fmt.Printf("%s = %s\n", kv.Key, kv.Value)
				}
			}
			return nil
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Restore default settings",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			store, err := settingsStore(cfg)
			if err != nil {
				return err
			}
			if _, err := store.Reset(); err != nil {
				return err
			}
			fmt.Println("settings reset to defaults")
			return nil
		},
	}

	configCmd.AddCommand(listCmd, setCmd, resetCmd)
	return configCmd
}

func settingsStore(cfg *config.Config) (*settings.Store, error) {
	path := cfg.SettingsPath
	if path == "" {
		var err error
		path, err = settings.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolve settings path: %w", err)
		}
	}
	return settings.NewStore(path, nil), nil
}

func urlFile(cfg *config.Config) (*urls.File, error) {
	store, err := settingsStore(cfg)
	if err != nil {
		return nil, err
	}
	sets, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &urls.File{Path: sets.URLsFile}, nil
}
