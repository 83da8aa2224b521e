package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/parley/pkg/adapters/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long:  `Exposes the engine as MCP tools for agent hosts, over stdio or SSE.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		logger := newLogger(cfg)

		engine, err := buildEngine(cfg, logger)
		if err != nil {
			fmt.Printf("Error initializing engine: %v\n", err)
			os.Exit(1)
		}

		server := mcp.NewServer(engine)

		useSSE, _ := cmd.Flags().GetBool("sse")
		if !useSSE {
			if err := server.ServeStdio(); err != nil {
				fmt.Printf("MCP server error: %v\n", err)
				os.Exit(1)
			}
			return
		}

		if port, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") {
			cfg.Server.MCPPort = port
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Printf("Starting Parley MCP Server (SSE) on :%d\n", cfg.Server.MCPPort)
		if err := server.ServeSSE(ctx, cfg.Server.MCPPort); err != nil {
			fmt.Printf("MCP server error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().Bool("sse", false, "Serve over SSE instead of stdio")
	mcpCmd.Flags().IntP("port", "p", 8081, "Port for the SSE listener")
}
