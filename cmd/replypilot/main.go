package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/replypilot/replypilot/internal/config"
	"github.com/replypilot/replypilot/internal/database"
	"github.com/replypilot/replypilot/internal/pipeline"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "replypilot",
	Short:   "Autonomous candidate discovery and engagement",
	Long:    "replypilot discovers fresh discussion-board posts per enrolled account, classifies relevance, and publishes contextual replies.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(accountsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("replypilot", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/replypilot/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure credentials, the model provider, and the schedule.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Accounts:")
		fmt.Printf("  Total: %d\n", stats.TotalAccounts)
		fmt.Printf("  Auto-pilot enabled: %d\n", stats.AutoPilotEnabled)
		fmt.Println("\nPost records:")
		fmt.Printf("  Posted: %d\n", stats.PostedRecords)
		fmt.Printf("  Skipped: %d\n", stats.SkippedRecords)
		fmt.Printf("  Failed: %d\n", stats.FailedRecords)
		fmt.Println("\nRuns:")
		fmt.Printf("  Total: %d\n", stats.TotalRuns)
		if stats.LastRunStarted != "" {
			fmt.Printf("  Last started: %s\n", stats.LastRunStarted)
		}
		fmt.Printf("\nCached community policies: %d\n", stats.CachedPolicies)
		return nil
	},
}

// --- run command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one engagement pass over all auto-pilot accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		return runOnce(cmd.Context(), db)
	},
}

func runOnce(ctx context.Context, db *database.DB) error {
	result, err := pipeline.New(cfg, db).Run(ctx)
	if err != nil {
		return err
	}

	if len(result.Accounts) == 0 {
		fmt.Println("No auto-pilot accounts enrolled.")
		return nil
	}

	fmt.Println("\nRun complete:")
	for _, r := range result.Accounts {
		switch r.Status {
		case pipeline.StatusSkippedConfig:
			fmt.Printf("  %s: skipped (incomplete configuration)\n", r.AccountName)
		case pipeline.StatusFailed:
			fmt.Printf("  %s: failed (%v)\n", r.AccountName, r.Err)
		default:
			fmt.Printf("  %s: discovered %d, approved %d, posted %d, failed %d\n",
				r.AccountName, r.Discovered, r.Approved, r.Posted, r.Failed)
		}
	}
	return nil
}

// --- schedule command ---

var scheduleSpec string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline on a fixed cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		spec := scheduleSpec
		if spec == "" {
			spec = cfg.Schedule.Cron
		}

		c := cron.New()
		_, err = c.AddFunc(spec, func() {
			log.Println("Scheduled run starting")
			if err := runOnce(context.Background(), db); err != nil {
				log.Printf("Scheduled run failed: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cron spec %q: %w", spec, err)
		}

		fmt.Printf("Scheduler started (%s). Press Ctrl+C to stop.\n", spec)
		c.Start()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		fmt.Println("Stopping scheduler...")
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleSpec, "cron", "", "Override the configured cron spec")
}

// --- accounts command ---

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage enrolled accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		accounts, err := db.ListAccounts()
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts enrolled. Add one with: replypilot accounts add")
			return nil
		}

		fmt.Println("Accounts:")
		fmt.Println()
		for _, a := range accounts {
			icon := " "
			if a.AutoPilotEnabled {
				icon = "*"
			}
			fmt.Printf("  [%d] %s %s\n", a.ID, icon, a.Name)
			fmt.Printf("        keywords: %s\n", strings.Join(a.SeedKeywords, ", "))
			fmt.Printf("        communities: %s\n", strings.Join(a.Communities, ", "))
		}
		return nil
	},
}

var (
	addKeywords     []string
	addCommunities  []string
	addDescription  string
	addLink         string
	addBenefits     string
	addRefreshToken string
)

var accountsAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Enroll a new account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		account := &database.Account{
			Name:               args[0],
			SeedKeywords:       addKeywords,
			Communities:        addCommunities,
			ProductDescription: addDescription,
			ProductLink:        addLink,
			ProductBenefits:    addBenefits,
			RefreshToken:       addRefreshToken,
		}
		id, err := db.InsertAccount(account)
		if err != nil {
			return err
		}
		fmt.Printf("Enrolled account [%d]: %s\n", id, account.Name)
		fmt.Println("Enable auto-pilot with: replypilot accounts enable", id)
		return nil
	},
}

var accountsEnableCmd = &cobra.Command{
	Use:   "enable [id]",
	Short: "Enable auto-pilot for an account",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setAutoPilot(args[0], true) },
}

var accountsDisableCmd = &cobra.Command{
	Use:   "disable [id]",
	Short: "Disable auto-pilot for an account",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setAutoPilot(args[0], false) },
}

func setAutoPilot(rawID string, enabled bool) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid account ID: %s", rawID)
	}

	account, err := db.GetAccount(id)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("account %d not found", id)
	}

	if err := db.SetAutoPilot(id, enabled); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("Auto-pilot %s for [%d] %s\n", state, id, account.Name)
	return nil
}

func init() {
	accountsAddCmd.Flags().StringSliceVar(&addKeywords, "keywords", nil, "Seed keywords (comma-separated)")
	accountsAddCmd.Flags().StringSliceVar(&addCommunities, "communities", nil, "Target communities (comma-separated)")
	accountsAddCmd.Flags().StringVar(&addDescription, "description", "", "Product description")
	accountsAddCmd.Flags().StringVar(&addLink, "link", "", "Product link")
	accountsAddCmd.Flags().StringVar(&addBenefits, "benefits", "", "Product benefits")
	accountsAddCmd.Flags().StringVar(&addRefreshToken, "refresh-token", "", "Account OAuth refresh token")

	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsAddCmd)
	accountsCmd.AddCommand(accountsEnableCmd)
	accountsCmd.AddCommand(accountsDisableCmd)
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "replypilot.db")
	return database.Open(dbPath)
}
