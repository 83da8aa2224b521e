package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/parley/examples/onboarding"
	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persistent sessions",
	Long:  `List, inspect, and remove sessions stored in the configured backend.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all active sessions",
	Run: func(cmd *cobra.Command, args []string) {
		store := getStore(cmd)
		lister, ok := store.(ports.Lister)
		if !ok {
			fmt.Println("The configured backend does not support listing sessions.")
			os.Exit(1)
		}

		sessions, err := lister.List(cmd.Context())
		if err != nil {
			fmt.Printf("Error listing sessions: %v\n", err)
			os.Exit(1)
		}

		if len(sessions) == 0 {
			fmt.Println("No active sessions found.")
			return
		}

		fmt.Println("Active Sessions:")
		for _, s := range sessions {
			fmt.Println("- " + s)
		}
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Inspect the state of a session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sessionID := args[0]
		store := getStore(cmd)

		state, err := store.Retrieve(cmd.Context(), sessionID)
		if err != nil {
			fmt.Printf("Error loading session '%s': %v\n", sessionID, err)
			os.Exit(1)
		}

		if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode {
			data, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				fmt.Printf("Error marshaling state: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(data))
			return
		}

		render := tui.NewRenderer()
		out, err := render(tui.SessionMarkdown(state))
		if err != nil {
			fmt.Println(tui.SessionMarkdown(state))
			return
		}
		fmt.Print(out)

		if trail, _ := cmd.Flags().GetBool("trail"); trail {
			out, err := render(tui.TrailMarkdown(state.AuditTrail))
			if err != nil {
				fmt.Println(tui.TrailMarkdown(state.AuditTrail))
				return
			}
			fmt.Print(out)
		}
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := getStore(cmd)
		hasError := false

		for _, sessionID := range args {
			if err := store.Delete(cmd.Context(), sessionID); err != nil {
				fmt.Printf("Error removing '%s': %v\n", sessionID, err)
				hasError = true
			} else {
				fmt.Printf("Removed session '%s'\n", sessionID)
			}
		}

		if hasError {
			os.Exit(1)
		}
	},
}

var sessionReplayCmd = &cobra.Command{
	Use:   "replay <session-id>",
	Short: "Recompute phase completion from the audit trail",
	Long: `Replays the session's append-only audit trail against an empty state
and prints the reconstructed phase completion, for compliance checks.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sessionID := args[0]
		store := getStore(cmd)

		state, err := store.Retrieve(cmd.Context(), sessionID)
		if err != nil {
			fmt.Printf("Error loading session '%s': %v\n", sessionID, err)
			os.Exit(1)
		}

		replayed := domain.ReplayCompletion(onboarding.Requirements(), state.AuditTrail)

		fmt.Printf("Replayed completion for '%s':\n", sessionID)
		for _, phase := range domain.Phases() {
			completion, visited := replayed[phase]
			if !visited {
				continue
			}
			marker := " "
			if stored, ok := state.PhaseCompletion[phase]; ok && stored != completion {
				marker = "!"
			}
			fmt.Printf("%s %-15s %.0f%%\n", marker, phase, completion*100)
		}
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
	sessionCmd.AddCommand(sessionReplayCmd)

	sessionInspectCmd.Flags().Bool("json", false, "Print the raw state as JSON")
	sessionInspectCmd.Flags().Bool("trail", false, "Include the audit trail")
}

func getStore(cmd *cobra.Command) ports.CacheStore {
	cfg := loadConfig(cmd)
	if store := newStore(cfg); store != nil {
		return store
	}
	// Without a configured backend there is nothing persistent to manage,
	// but an empty store keeps the commands usable.
	return memory.NewStore()
}
