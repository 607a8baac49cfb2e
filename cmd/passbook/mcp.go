package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	loamAdapter "github.com/passbooklabs/passbook/internal/adapters/loam"
	mcpAdapter "github.com/passbooklabs/passbook/internal/adapters/mcp"
	"github.com/passbooklabs/passbook/internal/adapters/memory"
	"github.com/passbooklabs/passbook/internal/logging"
	"github.com/passbooklabs/passbook/pkg/ports"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol server",
	Long: `Starts an MCP server exposing statement analysis as tools, so agents
can analyze local statement files.

Transports:
- stdio (default): standard input/output, for local process integration.
- sse: Server-Sent Events over HTTP, for remote agents.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol: stdio or sse")
	mcpCmd.Flags().Int("port", 8484, "Port to listen on (sse only)")
	mcpCmd.Flags().String("formats", "", "Provisioned format pack store directory")
}

func runMCP(cmd *cobra.Command, args []string) error {
	transport, _ := cmd.Flags().GetString("transport")
	port, _ := cmd.Flags().GetInt("port")
	formatsDir, _ := cmd.Flags().GetString("formats")

	level, err := logging.ParseLevel(logLevel(cmd, "info"))
	if err != nil {
		return startupErr(err)
	}
	// Logs go to stderr; stdout carries JSON-RPC on the stdio transport.
	log := logging.New(level)

	var formats ports.FormatLoader = memory.NewFormatStore()
	if formatsDir != "" {
		formats, err = loamAdapter.Open(formatsDir, loamAdapter.WithLogger(log))
		if err != nil {
			return startupErr(err)
		}
	}

	srv := mcpAdapter.NewServer(version, formats, mcpAdapter.WithLogger(log))

	switch transport {
	case "stdio":
		log.Info("mcp server starting", "transport", "stdio")
		if err := srv.ServeStdio(); err != nil {
			return runtimeErr(err)
		}
	case "sse":
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log.Info("mcp server starting", "transport", "sse", "port", port)
		if err := srv.ServeSSE(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return runtimeErr(err)
		}
		log.Info("mcp server stopped")
	default:
		return startupErr(fmt.Errorf("unknown transport %q (want stdio or sse)", transport))
	}
	return nil
}
