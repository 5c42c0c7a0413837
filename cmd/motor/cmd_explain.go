package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"motorcortex/internal/engine"
	"motorcortex/internal/intent"
	"motorcortex/internal/route"
)

var explainCmd = &cobra.Command{
	Use:   "explain [command]",
	Short: "Show the execution plan for a command without running it",
	Long: `Parses and validates a command, applies the web-chain routing
passes, and prints the resulting plan: every step, where it would run,
how steps group by subject, and whether the confirmation gate would
hold it. Nothing is executed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExplain,
}

func runExplain(cmd *cobra.Command, args []string) error {
	text := joinArgs(args)

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(a.cfg)
	defer cancel()

	uiCtx := a.prober.Snapshot(ctx, !engine.IsBasicShortcut(text))
	steps, groups, err := a.engine.Explain(ctx, text, uiCtx)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		fmt.Println("Nothing to do.")
		return nil
	}

	printMarkdown(formatPlan(text, steps, groups))
	return nil
}

func formatPlan(text string, steps []intent.Step, groups []engine.SubjectGroup) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Plan for %q\n\n", text))

	sb.WriteString("## Steps\n\n")
	routed := route.Plan(steps)
	for i, step := range routed {
		target := step.Target
		if target == "" {
			target = intent.TargetOS
		}
		line := fmt.Sprintf("%d. `%s` %s", i+1, step.Intent, stepSummary(step))
		line += fmt.Sprintf(" _(%s)_", target)
		if step.DeferOpen {
			line += " deferred until the chained inputs attach"
		}
		sb.WriteString(line + "\n")
	}

	if len(groups) > 1 {
		sb.WriteString("\n## Subjects\n\n")
		for _, group := range groups {
			sb.WriteString(fmt.Sprintf("- **%s** (%s), %d step(s) from step %d\n",
				group.SubjectName, group.SubjectType, len(group.Steps), group.StartIndex+1))
		}
	}

	sb.WriteString("\n## Confirmation\n\n")
	if engine.RequiresConfirmation(text, steps) {
		sb.WriteString("Held for confirmation before executing.\n")
	} else {
		sb.WriteString("Runs immediately, no confirmation required.\n")
	}

	return sb.String()
}

func stepSummary(step intent.Step) string {
	switch step.Intent {
	case intent.IntentOpenURL:
		if step.ResolvedURL != "" {
			return step.ResolvedURL
		}
		return step.URL
	case intent.IntentOpenApp:
		return step.App
	case intent.IntentOpenFile:
		return step.Path
	case intent.IntentKeyCombo:
		return strings.Join(step.Keys, "+")
	case intent.IntentTypeText:
		return fmt.Sprintf("%q", step.Text)
	case intent.IntentScroll:
		return fmt.Sprintf("%s %d", step.Direction, step.Amount)
	case intent.IntentWebSendMessage:
		return fmt.Sprintf("to %s: %q", step.Contact, step.Message)
	case intent.IntentWaitForURL:
		return step.URL
	default:
		return ""
	}
}

// printMarkdown renders through glamour, falling back to the raw text
// when the terminal renderer cannot be built.
func printMarkdown(markdown string) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		fmt.Print(markdown)
		return
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		fmt.Print(markdown)
		return
	}
	fmt.Print(out)
}
