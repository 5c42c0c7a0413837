package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"motorcortex/internal/config"
	"motorcortex/internal/engine"
	"motorcortex/internal/intent"
)

// SourceCLI marks one-shot dispatches from this binary.
const SourceCLI = "cli"

var (
	runStepsJSON string
	runJSONOut   bool
	runYes       bool
)

var runCmd = &cobra.Command{
	Use:   "run [command]",
	Short: "Dispatch a single command through the pipeline",
	Long: `Runs one command end to end: interpretation, validation, the
confirmation gate, and execution. Sensitive commands prompt on stdin
unless --yes pre-approves them.

Examples:
  motor run "open youtube and search for lofi"
  motor run --steps '[{"intent":"open_url","url":"https://github.com"}]'
  motor run --yes "close all windows"`,
	Args: cobra.ArbitraryArgs,
	RunE: runDispatch,
}

func init() {
	runCmd.Flags().StringVar(&runStepsJSON, "steps", "", "Pre-validated step list as JSON (skips interpretation)")
	runCmd.Flags().BoolVar(&runJSONOut, "json", false, "Print the raw result as JSON")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "Approve the confirmation gate without prompting")
}

func runDispatch(cmd *cobra.Command, args []string) error {
	text := joinArgs(args)
	if text == "" && runStepsJSON == "" {
		return fmt.Errorf("provide command text or --steps")
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(a.cfg)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	var result engine.Result
	if runStepsJSON != "" {
		var raw []map[string]any
		if err := json.Unmarshal([]byte(runStepsJSON), &raw); err != nil {
			return fmt.Errorf("invalid --steps payload: %w", err)
		}
		logger.Info("Dispatching pre-validated steps", zap.Int("count", len(raw)))
		result = a.engine.RunSteps(ctx, SourceCLI, text, raw)
	} else {
		logger.Info("Dispatching command", zap.String("text", text))
		uiCtx := a.prober.Snapshot(ctx, !engine.IsBasicShortcut(text))
		result = a.engine.Run(ctx, SourceCLI, text, uiCtx)
	}

	if result.Status == engine.StatusPending {
		result = resolvePendingOnStdin(ctx, a, result)
	}

	return printResult(result, runJSONOut)
}

// resolvePendingOnStdin shows the gated steps and asks for a verdict. A
// non-interactive stdin (or anything but an explicit yes) denies.
func resolvePendingOnStdin(ctx context.Context, a *app, pending engine.Result) engine.Result {
	fmt.Println(pending.Reason)
	for _, p := range a.engine.ListPending() {
		if p.ID != pending.ID {
			continue
		}
		for _, step := range p.Steps {
			fmt.Printf("  - %s\n", describeStep(step))
		}
	}

	if runYes {
		return a.engine.Approve(ctx, pending.ID)
	}

	fmt.Print("Approve? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	if answer == "y" || answer == "yes" {
		return a.engine.Approve(ctx, pending.ID)
	}
	return a.engine.Deny(pending.ID)
}

func commandContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	budget := cfg.GetCommandTimeout()
	if budget > 0 {
		return context.WithTimeout(context.Background(), budget)
	}
	return context.WithCancel(context.Background())
}

func printResult(result engine.Result, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	switch result.Status {
	case engine.StatusOK:
		fmt.Println("ok")
	case engine.StatusDenied:
		fmt.Println("denied, nothing was executed")
	case engine.StatusIgnored:
		fmt.Printf("ignored: %s\n", result.Reason)
	case engine.StatusTimeout:
		fmt.Printf("timeout: %s\n", result.Reason)
	default:
		fmt.Printf("%s: %s\n", result.Status, result.Reason)
		if result.Code != "" {
			fmt.Printf("  code: %s\n", result.Code)
		}
		if result.Screenshot != "" {
			fmt.Printf("  screenshot: %s\n", result.Screenshot)
		}
	}

	for _, step := range result.Results {
		line := fmt.Sprintf("  %-16s %s", step.Intent, step.Status)
		if step.Target != "" {
			line += " on " + step.Target
		}
		if step.ElapsedMS > 0 {
			line += fmt.Sprintf(" (%dms)", step.ElapsedMS)
		}
		fmt.Println(line)
		if from, ok := step.Details["fallback_from"]; ok {
			fmt.Printf("    fallback from %v\n", from)
		}
	}
	return nil
}

// describeStep renders one validated step for human review.
func describeStep(step intent.Step) string {
	switch step.Intent {
	case intent.IntentOpenURL:
		return fmt.Sprintf("open_url %s", step.URL)
	case intent.IntentOpenApp:
		return fmt.Sprintf("open_app %s", step.App)
	case intent.IntentOpenFile:
		return fmt.Sprintf("open_file %s", step.Path)
	case intent.IntentKeyCombo:
		return fmt.Sprintf("key_combo %s", strings.Join(step.Keys, "+"))
	case intent.IntentTypeText:
		return fmt.Sprintf("type_text %q", step.Text)
	case intent.IntentScroll:
		return fmt.Sprintf("scroll %s %d", step.Direction, step.Amount)
	case intent.IntentWebSendMessage:
		return fmt.Sprintf("web_send_message to %s: %q", step.Contact, step.Message)
	default:
		return step.Intent
	}
}
