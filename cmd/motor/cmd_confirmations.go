package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"motorcortex/internal/confirm"
	"motorcortex/internal/engine"
)

// The confirmation queue lives inside a running serve process, so these
// commands talk to its HTTP API rather than opening the stores directly.

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List commands waiting for confirmation",
	Long: `Lists the sensitive commands a running "motor serve" process has
parked pending approval. Requires the server to be running.`,
	Args: cobra.NoArgs,
	RunE: runPending,
}

var approveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a pending command and execute it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerdict(args[0], "approve")
	},
}

var denyCmd = &cobra.Command{
	Use:   "deny <id>",
	Short: "Deny a pending command and discard it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerdict(args[0], "deny")
	},
}

func apiClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func runPending(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	resp, err := apiClient().Get("http://" + cfg.API.Addr + "/confirmations")
	if err != nil {
		return fmt.Errorf("cannot reach motor at %s (is \"motor serve\" running?): %w", cfg.API.Addr, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Items []confirm.Pending `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(payload.Items) == 0 {
		fmt.Println("No pending confirmations.")
		return nil
	}
	for _, p := range payload.Items {
		fmt.Printf("%s  %q\n", p.ID, p.Text)
		if p.Reason != "" {
			fmt.Printf("    reason: %s\n", p.Reason)
		}
		for _, step := range p.Steps {
			fmt.Printf("    %s\n", describeStep(step))
		}
	}
	return nil
}

func runVerdict(id, verdict string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/confirmations/%s/%s", cfg.API.Addr, id, verdict)
	resp, err := apiClient().Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("cannot reach motor at %s (is \"motor serve\" running?): %w", cfg.API.Addr, err)
	}
	defer resp.Body.Close()

	var result engine.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound || result.Status == engine.StatusMissing {
		return fmt.Errorf("no pending confirmation with id %q", id)
	}
	return printResult(result, false)
}
