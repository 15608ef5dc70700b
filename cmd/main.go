package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sabarim/fxdata/internal/config"
	"github.com/sabarim/fxdata/internal/partition"
	"github.com/sabarim/fxdata/internal/pipeline"
	"github.com/sabarim/fxdata/internal/rates"
)

var (
	configFile   string
	apiKey       string
	baseCurrency string
	startDate    string
	endDate      string
	savePath     string
	timeout      int
	requestDelay int
	maxRetries   int
	strict       bool
	verbose      bool
	version      bool
)

var version_string = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "fxdata",
		Short: "A utility to download currency exchange rates",
		Long:  `A standalone utility for downloading historical or latest currency exchange rates and saving them as month-partitioned Parquet files.`,
		Run:   runRootCommand,
	}

	rootCmd.Flags().StringVar(&configFile, "config", "config.yaml", "Path to config file")
	rootCmd.Flags().StringVar(&apiKey, "api-key", "", "API key for the exchange rate service")
	rootCmd.Flags().StringVar(&baseCurrency, "base-currency", "", "Base currency to quote rates against (default is USD)")
	rootCmd.Flags().StringVar(&startDate, "start-date", "", "Start date (YYYY-MM-DD)")
	rootCmd.Flags().StringVar(&endDate, "end-date", "", "End date (YYYY-MM-DD)")
	rootCmd.Flags().StringVar(&savePath, "save-path", "", "Output directory for partitioned Parquet files (default output/)")
	rootCmd.Flags().IntVar(&timeout, "timeout", 0, "Per-request timeout in seconds")
	rootCmd.Flags().IntVar(&requestDelay, "request-delay", 0, "Delay between requests in milliseconds")
	rootCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Maximum number of retries for failed requests")
	rootCmd.Flags().BoolVar(&strict, "strict", false, "Abort on the first failed date instead of skipping it")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	rootCmd.Flags().BoolVar(&version, "version", false, "Print version information")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runRootCommand(cmd *cobra.Command, args []string) {
	if version {
		fmt.Printf("fxdata version %s\n", version_string)
		return
	}

	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	// Pick up FX_* variables from a local .env if present
	_ = godotenv.Load()

	// 1. Load configuration from file and environment
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	// 2. Override configuration with command-line flags
	if apiKey != "" {
		cfg.API.Key = apiKey
	}
	if baseCurrency != "" {
		cfg.API.BaseCurrency = baseCurrency
	}
	if savePath != "" {
		cfg.Output.SavePath = savePath
	}
	if timeout > 0 {
		cfg.Fetch.TimeoutSeconds = timeout
	}
	if requestDelay > 0 {
		cfg.Fetch.RequestDelay = requestDelay
	}
	if maxRetries > 0 {
		cfg.Fetch.MaxRetries = maxRetries
	}
	if strict {
		cfg.Fetch.Strict = true
	}

	if cfg.API.Key == "" {
		log.Fatalf("No API key configured; set FX_API_KEY or pass --api-key")
	}

	// 3. Resolve the date range and verify the output path before any
	// network call is made
	dates, err := pipeline.ResolveRange(startDate, endDate, time.Now())
	if err != nil {
		log.Fatalf("Invalid date range: %v", err)
	}

	writer, err := partition.NewWriter(cfg.Output.SavePath, log)
	if err != nil {
		log.Fatalf("Output path is not writable: %v", err)
	}

	// 4. Create context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Handle OS signals
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigchan
		log.Infof("Received signal %v, initiating shutdown...", sig)
		cancel()
	}()

	// 6. Fetch and write
	client := rates.NewClient(&cfg, log)
	p := pipeline.New(client, writer, &cfg, log)

	log.Infof("Fetching rates for %d date(s), saving to %s", len(dates), cfg.Output.SavePath)
	if err := p.Run(ctx, dates); err != nil {
		log.Fatalf("Run finished with errors: %v", err)
	}

	log.Info("Exchange rate download completed successfully")
}
