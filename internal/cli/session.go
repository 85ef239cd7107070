package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gzhole/skillgate/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or reset per-session guardrail state",
	Long: `Each session records which guardrails have already fired, so each one
blocks at most once. Clearing a session makes its guardrails fire again.

  skillgate session list
  skillgate session show <session-id>
  skillgate session clear <session-id>`,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session's state",
	Args:  cobra.ExactArgs(1),
	RunE:  sessionShow,
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear <session-id>",
	Short: "Forget which guardrails a session has used",
	Args:  cobra.ExactArgs(1),
	RunE:  sessionClear,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions with state files",
	Args:  cobra.NoArgs,
	RunE:  sessionList,
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionClearCmd)
	sessionCmd.AddCommand(sessionListCmd)
	rootCmd.AddCommand(sessionCmd)
}

func sessionShow(cmd *cobra.Command, args []string) error {
	store := session.NewFileStore(cfg.StateDir)
	state, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func sessionClear(cmd *cobra.Command, args []string) error {
	store := session.NewFileStore(cfg.StateDir)
	if err := store.Clear(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session '%s' cleared.\n", args[0])
	return nil
}

func sessionList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ids, err := session.NewFileStore(cfg.StateDir).List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintf(out, "No sessions recorded in %s\n", cfg.StateDir)
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}
