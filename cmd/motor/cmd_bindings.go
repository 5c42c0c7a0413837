package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"motorcortex/internal/bindings"
)

var bindingHotkey string

var bindingsCmd = &cobra.Command{
	Use:   "bindings",
	Short: "Manage gesture bindings",
	Long: `Inspect and edit the gesture binding table. A binding maps a gesture
label to the command text dispatched when that gesture fires; a running
"motor serve" process picks up edits automatically.`,
}

var bindingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all gesture bindings",
	Args:  cobra.NoArgs,
	RunE:  runBindingsList,
}

var bindingsSetCmd = &cobra.Command{
	Use:   "set <label> <command...>",
	Short: "Bind a gesture label to a command",
	Long: `Binds a gesture label to a command. Any cached step validation for the
label is cleared so the next dispatch re-parses the new text.

Example:
  motor bindings set swipe_up "open youtube"
  motor bindings set fist copy --hotkey ctrl+c`,
	Args: cobra.MinimumNArgs(2),
	RunE: runBindingsSet,
}

var bindingsRmCmd = &cobra.Command{
	Use:   "rm <label>",
	Short: "Remove a gesture binding",
	Args:  cobra.ExactArgs(1),
	RunE:  runBindingsRm,
}

func init() {
	bindingsSetCmd.Flags().StringVar(&bindingHotkey, "hotkey", "", "Hotkey hint shown alongside the binding")
	bindingsCmd.AddCommand(bindingsListCmd, bindingsSetCmd, bindingsRmCmd)
}

func openBindingStore() (*bindings.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store := bindings.NewStore(cfg.BindingsPath(), cfg.HotkeysPath())
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load bindings: %w", err)
	}
	return store, nil
}

func runBindingsList(cmd *cobra.Command, args []string) error {
	store, err := openBindingStore()
	if err != nil {
		return err
	}

	labels := store.Labels()
	if len(labels) == 0 {
		fmt.Println("No bindings configured.")
		return nil
	}
	all := store.All()
	for _, label := range labels {
		b := all[label]
		line := fmt.Sprintf("%-20s %q", label, b.CommandText)
		if hotkey, ok := store.Hotkey(label); ok {
			line += fmt.Sprintf("  [%s]", hotkey)
		}
		if len(b.ValidatedSteps) > 0 {
			line += fmt.Sprintf("  (%d cached steps)", len(b.ValidatedSteps))
		}
		fmt.Println(line)
	}
	return nil
}

func runBindingsSet(cmd *cobra.Command, args []string) error {
	store, err := openBindingStore()
	if err != nil {
		return err
	}

	label := args[0]
	text := joinArgs(args[1:])
	if err := store.Set(label, bindings.Binding{CommandText: text}); err != nil {
		return fmt.Errorf("failed to save binding: %w", err)
	}
	if bindingHotkey != "" {
		if err := store.SetHotkey(label, bindingHotkey); err != nil {
			return fmt.Errorf("failed to save hotkey: %w", err)
		}
	}
	fmt.Printf("Bound %s to %q\n", label, text)
	return nil
}

func runBindingsRm(cmd *cobra.Command, args []string) error {
	store, err := openBindingStore()
	if err != nil {
		return err
	}

	label := args[0]
	if _, ok := store.Lookup(label); !ok {
		return fmt.Errorf("no binding named %q", label)
	}
	if err := store.Delete(label); err != nil {
		return fmt.Errorf("failed to remove binding: %w", err)
	}
	fmt.Printf("Removed %s\n", label)
	return nil
}
