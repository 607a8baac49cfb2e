// Package mcp exposes statement analysis over the Model Context Protocol,
// so editor assistants can analyze local statement files without the HTTP
// service. Serves stdio for local clients and SSE for remote ones.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/passbooklabs/passbook/internal/logging"
	"github.com/passbooklabs/passbook/pkg/domain"
	"github.com/passbooklabs/passbook/pkg/ports"
	"github.com/passbooklabs/passbook/pkg/statement"
)

// maxStatementBytes mirrors the HTTP upload cap.
const maxStatementBytes = 10 << 20

// formatsURI is the resource listing the loaded format packs.
const formatsURI = "passbook://formats"

// AnalysisResult aligns with the /analyze response schema, so MCP clients and
// HTTP clients see the same shape.
type AnalysisResult struct {
	Summary           statement.Summary          `json:"summary" jsonschema_description:"Whole-statement aggregates"`
	Loan              statement.LoanAnalysis     `json:"loan_analysis" jsonschema_description:"Loan readiness score and its inputs"`
	Monthly           []statement.MonthlySummary `json:"monthly_summary" jsonschema_description:"Per-month credit/debit rollup"`
	TotalTransactions int                        `json:"total_transactions" jsonschema_description:"Number of parsed transactions"`
}

// Server wraps the analysis pipeline and exposes it as an MCP server.
type Server struct {
	formats   ports.FormatLoader
	log       *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the diagnostic logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// NewServer creates an MCP server over the given format loader.
func NewServer(version string, formats ports.FormatLoader, opts ...Option) *Server {
	s := &Server{
		formats:   formats,
		log:       logging.NewNop(),
		mcpServer: server.NewMCPServer("passbook", version),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP protocol over SSE on the given port until the
// context is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- httpServer.ListenAndServe()
	}()
	s.log.Info("mcp server listening", "addr", addr)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("mcp shutdown: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	analyzeTool := mcp.NewTool("analyze_statement",
		mcp.WithDescription("Analyze a bank statement file: totals, monthly rollup, and a loan readiness score."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the statement export (CSV, XLSX, or fixed-width text)")),
		mcp.WithString("format", mcp.Description("Format pack to parse with (default hdfc)")),
		mcp.WithOutputSchema[AnalysisResult](),
	)
	s.mcpServer.AddTool(analyzeTool, mcp.NewStructuredToolHandler(s.handleAnalyze))

	s.mcpServer.AddTool(mcp.NewTool("list_formats",
		mcp.WithDescription("List the loaded statement format packs."),
	), s.handleListFormats)
}

func (s *Server) handleAnalyze(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (AnalysisResult, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return AnalysisResult{}, fmt.Errorf("path is required")
	}
	format, _ := args["format"].(string)
	if format == "" {
		format = "hdfc"
	}

	info, err := os.Stat(path)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("statement: %w", err)
	}
	if info.Size() > maxStatementBytes {
		return AnalysisResult{}, fmt.Errorf("statement %s (%d bytes): %w", path, info.Size(), domain.ErrTooLarge)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("statement: %w", err)
	}

	spec, err := s.formats.GetFormat(ctx, format)
	if err != nil {
		return AnalysisResult{}, err
	}
	txns, err := statement.Parse(data, spec)
	if err != nil {
		return AnalysisResult{}, err
	}
	a, err := statement.Analyze(txns)
	if err != nil {
		return AnalysisResult{}, err
	}

	s.log.Debug("statement analyzed", "path", path, "format", format, "transactions", a.TotalTransactions)

	return AnalysisResult{
		Summary:           a.Summary,
		Loan:              a.Loan,
		Monthly:           a.Monthly,
		TotalTransactions: a.TotalTransactions,
	}, nil
}

func (s *Server) handleListFormats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.formats.ListFormats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list formats failed: %v", err)), nil
	}
	encoded, _ := json.Marshal(map[string]any{"formats": names})
	return mcp.NewToolResultText(string(encoded)), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(formatsURI, "Loaded Format Packs",
		mcp.WithMIMEType("application/json"),
	), s.handleFormatsResource)
}

func (s *Server) handleFormatsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	names, err := s.formats.ListFormats(ctx)
	if err != nil {
		return nil, fmt.Errorf("list formats: %w", err)
	}
	encoded, _ := json.Marshal(names)

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatsURI,
			MIMEType: "application/json",
			Text:     string(encoded),
		},
	}, nil
}
