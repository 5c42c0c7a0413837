package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"motorcortex/internal/logging"
	"motorcortex/internal/resolve"
)

var resolveJSONOut bool

var resolveCmd = &cobra.Command{
	Use:   "resolve [query]",
	Short: "Resolve a site query to a URL through the fallback chain",
	Long: `Runs the headless resolver and its fallback chain directly: the
known-domain table, the live resolution probe, the search-engine
fallback, and the homepage guess. Prints which rung answered.

Example:
  motor resolve "youtube"
  motor resolve "that news site with the orange logo"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveJSONOut, "json", false, "Print the raw result as JSON")
}

func runResolve(cmd *cobra.Command, args []string) error {
	query := joinArgs(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := logging.Initialize(cfg.LogDir(), logging.Options{
		DebugMode:  cfg.Logging.DebugMode || verbose,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	resolver := resolve.New(cfg)
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("resolver close", zap.Error(err))
		}
	}()
	chain := resolve.NewChain(resolver, cfg)

	ctx, cancel := commandContext(cfg)
	defer cancel()

	logger.Info("Resolving query", zap.String("query", query))
	result := chain.Execute(ctx, query)

	if resolveJSONOut {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("status:   %s\n", result.Status)
	if result.FinalURL != "" {
		fmt.Printf("url:      %s\n", result.FinalURL)
	}
	fmt.Printf("fallback: %s\n", result.FallbackUsed)
	if len(result.Attempts) > 0 {
		fmt.Printf("attempts: %v\n", result.Attempts)
	}
	fmt.Printf("elapsed:  %dms\n", result.ElapsedMS)
	if result.Error != "" {
		fmt.Printf("error:    %s\n", result.Error)
	}
	return nil
}
