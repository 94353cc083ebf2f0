package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/datum/internal/config"
	"github.com/aretw0/datum/pkg/adapters/mcp"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the Datum engine as an MCP Server.
This allows AI agents to execute commands, invoke scripts, and query the
document selection as tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Run: func(cmd *cobra.Command, args []string) {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
		if cmd.Flags().Changed("port") {
			cfg.MCPPort = port
		}

		// Logs must stay off Stdout so they don't corrupt JSON-RPC.
		logger := newLogger(cmd, cfg)

		engine, _, cleanup, err := buildEngine(cmd.Context(), cfg, logger)
		if err != nil {
			log.Fatalf("Error initializing datum: %v", err)
		}
		defer cleanup()

		srv := mcp.NewServer(engine.Dispatcher(), engine.HotLoader())

		switch transport {
		case "stdio":
			log.SetOutput(os.Stderr)
			logger.Info("starting datum MCP server (stdio)")
			if err := srv.ServeStdio(); err != nil {
				logger.Error("MCP server execution failed", "err", err)
				os.Exit(1)
			}
		case "sse":
			logger.Info("starting datum MCP server (SSE)", "port", cfg.MCPPort)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.ServeSSE(ctx, cfg.MCPPort); err != nil {
				if err != http.ErrServerClosed {
					logger.Error("MCP server execution failed", "err", err)
					os.Exit(1)
				}
			}
			logger.Info("MCP server stopped gracefully")
		default:
			fmt.Printf("Unknown transport: %s. Supported: stdio, sse\n", transport)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8765, "Port to listen on (only for SSE)")
}
