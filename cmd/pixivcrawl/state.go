package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pixivcrawl/pkg/checkpoint"
	"pixivcrawl/pkg/config"
	"pixivcrawl/pkg/logger"
	"pixivcrawl/pkg/ui"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset saved crawl progress",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List authors with saved progress",
	Args:  cobra.NoArgs,
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <authorID>",
	Short: "Show saved progress of an author",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset <authorID>",
	Short: "Forget saved progress of an author",
	Long: `Forget saved progress of an author. Files already downloaded are kept
and will be recognized on the next run.`,
	Args: cobra.ExactArgs(1),
	RunE: runStateReset,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)
}

func openStateStore() (checkpoint.Store, error) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return nil, err
	}
	return checkpoint.Open(cfg.State.Backend, cfg.State.Directory, logger.NewNopLogger())
}

func runStateList(cmd *cobra.Command, args []string) error {
	store, err := openStateStore()
	if err != nil {
		return err
	}
	defer store.Close()

	authors, err := store.List()
	if err != nil {
		return err
	}
	if len(authors) == 0 {
		ui.PrintInfo("No saved progress", "run 'pixivcrawl <authorID>' to start a crawl")
		return nil
	}
	for _, author := range authors {
		fmt.Fprintln(ui.Stdout, author)
	}
	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	store, err := openStateStore()
	if err != nil {
		return err
	}
	defer store.Close()

	state, err := store.Load(args[0])
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("no saved progress for author %s", args[0])
	}

	complete, failed, skipped := state.Counts()
	ui.PrintInfo("Author", state.AuthorID)
	ui.PrintInfo("Last run", state.RunID)
	ui.PrintInfo("Updated", state.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(ui.Stdout, "complete=%d failed=%d skipped=%d\n", complete, failed, skipped)

	for _, id := range state.FailedIDs() {
		f := state.Failed[id]
		fmt.Fprintf(ui.Stdout, "  %s %s (%s, page %d): %s\n", ui.Red("failed"), id, f.ErrorType, f.Page, f.Error)
	}
	for _, id := range state.SkippedIDs() {
		fmt.Fprintf(ui.Stdout, "  %s %s: %s\n", ui.Yellow("skipped"), id, state.Skipped[id].Reason)
	}

	switch {
	case state.FatalError != "":
		ui.PrintWarning("Last run aborted", state.FatalError)
	case state.Interrupted:
		ui.PrintWarning("Last run was interrupted; run again to resume")
	}
	return nil
}

func runStateReset(cmd *cobra.Command, args []string) error {
	store, err := openStateStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(args[0]); err != nil {
		return err
	}
	ui.PrintSuccess("Saved progress removed for author " + args[0])
	return nil
}
