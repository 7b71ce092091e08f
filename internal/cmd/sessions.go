package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conclave-ai/conclave/internal/util"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage persisted council sessions",
	Long:  `Commands for listing, inspecting, and deleting persisted council sessions.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all persisted sessions",
	Long: `List all persisted sessions, most recently updated first, with their
topic, mode, status, and transcript size.`,
	RunE: runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session transcript and its aggregates",
	Long: `Show the full transcript of a session along with whichever aggregate
it produced: the vote tally, the prediction ensemble, or the
dialectical trace.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a persisted session",
	Long: `Delete a persisted session. Running sessions must be stopped before
they can be deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsDelete,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sums, err := a.store.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	fmt.Println(divider(70))
	fmt.Println(titleStyle.Render("Council Sessions"))
	fmt.Println(divider(70))

	if len(sums) == 0 {
		fmt.Println("\nNo sessions found.")
		fmt.Println("Run 'conclave convene <topic>' to hold one.")
		return nil
	}

	for _, sum := range sums {
		fmt.Printf("%s  %s\n", authorStyle.Render(sum.ID), statusBadge(sum.Status))
		fmt.Printf("  %s  %s  %s\n",
			kv("Topic", util.TruncateString(sum.Topic, 48)),
			kv("Mode", sum.Mode),
			kv("Messages", sum.Messages))
		fmt.Printf("  %s\n", systemStyle.Render("updated "+sum.UpdatedAt.Format("2006-01-02 15:04:05")))
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.store.Load(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", args[0], err)
	}

	printSession(s)
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.orchestrator.Registry().Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", args[0], err)
	}
	fmt.Printf("Deleted session %s\n", args[0])
	return nil
}
