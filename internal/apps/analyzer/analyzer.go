// Package analyzer is the flagship passbook application: a bank statement
// analysis service. Clients upload a statement export (CSV, XLSX, or
// fixed-width text) and receive aggregate totals, a monthly rollup, and a
// loan readiness score, or the same result rendered as an XLSX workbook.
//
// Results are cached by content digest, so re-uploading an identical
// statement answers without re-parsing regardless of which worker gets the
// request (with a shared cache backend).
package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/passbooklabs/passbook/api"
	"github.com/passbooklabs/passbook/internal/adapters/memory"
	"github.com/passbooklabs/passbook/internal/logging"
	"github.com/passbooklabs/passbook/pkg/domain"
	"github.com/passbooklabs/passbook/pkg/ports"
	"github.com/passbooklabs/passbook/pkg/statement"
)

// Name is the registry reference of this application.
const Name = "analyzer"

// DefaultMaxUpload caps statement uploads at 10 MiB.
const DefaultMaxUpload = 10 << 20

// Config assembles an App with explicit dependencies. The zero value works:
// builtin formats, in-process cache, no logging.
type Config struct {
	// Formats resolves format packs. Nil falls back to the builtin set.
	Formats ports.FormatLoader

	// Cache stores analysis results by content digest. Nil falls back to an
	// in-process cache.
	Cache ports.Cache

	Logger *slog.Logger

	// DefaultFormat is used when an upload does not name one. Empty means "hdfc".
	DefaultFormat string

	// MaxUploadBytes caps the statement file size. Zero means DefaultMaxUpload.
	MaxUploadBytes int64
}

// App serves the statement analysis API.
type App struct {
	formats   ports.FormatLoader
	cache     ports.Cache
	log       *slog.Logger
	defFormat string
	maxUpload int64
	router    chi.Router
}

// New builds the application.
func New(cfg Config) *App {
	a := &App{
		formats:   cfg.Formats,
		cache:     cfg.Cache,
		log:       cfg.Logger,
		defFormat: cfg.DefaultFormat,
		maxUpload: cfg.MaxUploadBytes,
	}
	if a.formats == nil {
		a.formats = memory.NewFormatStore()
	}
	if a.cache == nil {
		a.cache = memory.NewCache()
	}
	if a.log == nil {
		a.log = logging.NewNop()
	}
	if a.defFormat == "" {
		a.defFormat = "hdfc"
	}
	if a.maxUpload <= 0 {
		a.maxUpload = DefaultMaxUpload
	}

	r := chi.NewRouter()
	r.Use(a.cors)
	r.Post("/analyze", a.handleAnalyze)
	r.Post("/download-excel", a.handleDownloadExcel)
	r.Get("/formats", a.handleFormats)
	r.Get("/openapi.yaml", a.handleOpenAPI)
	r.Get("/docs", a.handleDocs)
	a.router = r

	return a
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// cors admits any origin with credentials. Credentials rule out a wildcard,
// so the request origin is echoed back.
func (a *App) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			h := w.Header()
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *App) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	result, ok := a.process(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, result.analysis())
}

func (a *App) handleDownloadExcel(w http.ResponseWriter, r *http.Request) {
	result, ok := a.process(w, r)
	if !ok {
		return
	}

	wb, err := statement.Workbook(result.analysis())
	if err != nil {
		a.log.Error("workbook export failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to build workbook.")
		return
	}
	defer wb.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=analysis.xlsx")
	if err := wb.Write(w); err != nil {
		a.log.Warn("workbook write aborted", "err", err)
	}
}

func (a *App) handleFormats(w http.ResponseWriter, r *http.Request) {
	names, err := a.formats.ListFormats(r.Context())
	if err != nil {
		a.log.Error("listing formats failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to list formats.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"formats": names})
}

func (a *App) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/yaml")
	_, _ = w.Write(api.Document())
}

func (a *App) handleDocs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(docsHTML))
}

// cachedResult is the cache entry shape. It keeps the transactions the public
// JSON body omits, so the workbook export can also be served from cache.
type cachedResult struct {
	Transactions []statement.Transaction    `json:"transactions"`
	Summary      statement.Summary          `json:"summary"`
	Loan         statement.LoanAnalysis     `json:"loan_analysis"`
	Monthly      []statement.MonthlySummary `json:"monthly_summary"`
}

func (c *cachedResult) analysis() *statement.Analysis {
	return &statement.Analysis{
		Transactions:      c.Transactions,
		Summary:           c.Summary,
		Loan:              c.Loan,
		Monthly:           c.Monthly,
		TotalTransactions: len(c.Transactions),
	}
}

// process runs the shared upload pipeline: read the multipart file, resolve
// the format, and analyze (from cache when the same content was seen before).
// On failure it writes the error response and returns ok=false.
func (a *App) process(w http.ResponseWriter, r *http.Request) (*cachedResult, bool) {
	// The margin covers multipart framing and the form fields; the exact cap
	// applies to the file part below.
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload+1<<20)

	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "File too large.")
		} else {
			writeError(w, http.StatusBadRequest, "Missing file field.")
		}
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, a.maxUpload+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload.")
		return nil, false
	}
	if int64(len(data)) > a.maxUpload {
		writeError(w, http.StatusBadRequest, "File too large.")
		return nil, false
	}

	format := r.FormValue("format")
	if format == "" {
		format = a.defFormat
	}

	key := cacheKey(format, data)
	if cached, err := a.cache.Get(r.Context(), key); err == nil {
		var result cachedResult
		if err := json.Unmarshal(cached, &result); err == nil {
			return &result, true
		}
		a.log.Warn("dropping undecodable cache entry", "key", key, "err", err)
	} else if !errors.Is(err, domain.ErrCacheMiss) {
		a.log.Warn("cache lookup failed", "key", key, "err", err)
	}

	spec, err := a.formats.GetFormat(r.Context(), format)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownFormat) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown format %q.", format))
		} else {
			a.log.Error("format lookup failed", "format", format, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to load format.")
		}
		return nil, false
	}

	txns, err := statement.Parse(data, spec)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedFile) {
			writeError(w, http.StatusBadRequest, "Unsupported file type.")
		} else {
			a.log.Error("statement parse failed", "format", format, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to parse statement.")
		}
		return nil, false
	}

	analysis, err := statement.Analyze(txns)
	if err != nil {
		if errors.Is(err, domain.ErrNoTransactions) {
			writeError(w, http.StatusBadRequest, "No transactions detected.")
		} else {
			a.log.Error("analysis failed", "format", format, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to analyze statement.")
		}
		return nil, false
	}

	result := &cachedResult{
		Transactions: analysis.Transactions,
		Summary:      analysis.Summary,
		Loan:         analysis.Loan,
		Monthly:      analysis.Monthly,
	}
	if encoded, err := json.Marshal(result); err == nil {
		if err := a.cache.Set(r.Context(), key, encoded); err != nil {
			a.log.Warn("cache store failed", "key", key, "err", err)
		}
	}
	return result, true
}

// cacheKey digests the format name and the raw upload. The NUL separator
// keeps (format, body) pairs from colliding across formats.
func cacheKey(format string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(format))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the {"detail": ...} body every endpoint uses for errors.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

const docsHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Passbook Statement Analyzer</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`
