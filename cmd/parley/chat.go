package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/domain"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the workflow interactively",
	Long: `Starts an interactive session against the bundled onboarding workflow.
Global commands (restart, go_back, help, debug) work at any point.
Type 'exit' to leave; the session survives in the configured store.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		logger := newLogger(cfg)
		userID, _ := cmd.Flags().GetString("user")

		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			sessionID = fmt.Sprintf("chat-%d", time.Now().Unix())
		}

		engine, err := buildEngine(cfg, logger)
		if err != nil {
			fmt.Printf("Error initializing engine: %v\n", err)
			os.Exit(1)
		}

		interactive := term.IsTerminal(int(os.Stdin.Fd()))
		render := func(s string) (string, error) { return s + "\n", nil }
		if interactive {
			tui.PrintBanner()
			fmt.Printf("Session %s as %s. Type 'exit' to leave.\n\n", sessionID, userID)
			render = tui.NewRenderer()
		}

		scanner := bufio.NewScanner(os.Stdin)
		for {
			if interactive {
				fmt.Print("> ")
			}
			if !scanner.Scan() {
				break
			}
			input := strings.TrimSpace(scanner.Text())
			if input == "" {
				continue
			}
			if input == "exit" || input == "quit" {
				break
			}

			res, err := engine.Turn(cmd.Context(), domain.TurnRequest{
				SessionID: sessionID,
				UserID:    userID,
				Message:   input,
			})
			if err != nil && res == nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			if res.Err != nil {
				fmt.Printf("[%s] %s\n", res.Err.Kind, res.Err.Message)
			}
			for _, msg := range res.Messages {
				if msg.Role != "assistant" {
					continue
				}
				out, rerr := render(msg.Content)
				if rerr != nil {
					out = msg.Content + "\n"
				}
				fmt.Print(out)
			}
			if res.Phase.Terminal() {
				break
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("session", "s", "", "Session ID to resume (default: a fresh one)")
}
