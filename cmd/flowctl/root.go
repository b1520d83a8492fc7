package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"sphere_canvas/internal/config"
	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/execution"
	"sphere_canvas/internal/interchange"
	"sphere_canvas/internal/store"
	"sphere_canvas/internal/store/backend"
)

var (
	configPath string
	apiURL     string
	dbDSN      string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "flowctl",
	Short:         "Validate, compile, run and store visual workflows",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to canvas.toml (default: ~/.sphere/canvas.toml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "execution server base URL override")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db", "", "graph library DSN override (sqlite path or postgres:// URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log requests to stderr")
}

// loadConfig reads the config file and applies the persistent flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(apiURL) != "" {
		cfg.API.BaseURL = strings.TrimSpace(apiURL)
	}
	if strings.TrimSpace(dbDSN) != "" {
		cfg.Library.DSN = strings.TrimSpace(dbDSN)
	}
	return cfg, nil
}

func newLogger() *log.Logger {
	if verbose {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

func newClient(cfg config.Config) (*execution.Client, error) {
	return execution.NewClient(execution.ClientConfig{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.APITimeout(),
		Logger:  newLogger(),
	})
}

func openLibrary(ctx context.Context, cfg config.Config) (store.Store, error) {
	s, err := backend.Open(ctx, cfg.Library.DSN)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	return s, nil
}

// readGraph loads a workflow file and reports any import repairs on stderr.
func readGraph(cmd *cobra.Command, path string) (domain.Document, error) {
	doc, report, err := interchange.LoadFile(path)
	if err != nil {
		return domain.Document{}, err
	}
	for _, r := range report.Repairs {
		fmt.Fprintf(cmd.ErrOrStderr(), "repaired: %s\n", r)
	}
	return doc, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(v string) string {
	if len(v) <= 8 {
		return v
	}
	return v[:8]
}
