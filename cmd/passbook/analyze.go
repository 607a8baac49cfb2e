package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	loamAdapter "github.com/passbooklabs/passbook/internal/adapters/loam"
	"github.com/passbooklabs/passbook/internal/adapters/memory"
	"github.com/passbooklabs/passbook/internal/presentation/report"
	"github.com/passbooklabs/passbook/pkg/ports"
	"github.com/passbooklabs/passbook/pkg/statement"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <statement>",
	Short: "Analyze a statement file locally",
	Long: `Analyze parses one statement export and prints the analysis: totals,
monthly rollup, and the loan readiness score. With a TTY the report renders
as styled markdown; otherwise plain text. --export writes the full
transaction workbook next to it.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().String("format", "hdfc", "Format pack to parse with")
	analyzeCmd.Flags().String("formats", "", "Provisioned format pack store directory")
	analyzeCmd.Flags().String("export", "", "Write the analysis workbook to this .xlsx path")
	analyzeCmd.Flags().Bool("json", false, "Emit the analysis as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := args[0]
	format, _ := cmd.Flags().GetString("format")
	formatsDir, _ := cmd.Flags().GetString("formats")
	export, _ := cmd.Flags().GetString("export")
	asJSON, _ := cmd.Flags().GetBool("json")

	data, err := os.ReadFile(path)
	if err != nil {
		return startupErr(fmt.Errorf("reading statement: %w", err))
	}

	var formats ports.FormatLoader = memory.NewFormatStore()
	if formatsDir != "" {
		formats, err = loamAdapter.Open(formatsDir)
		if err != nil {
			return startupErr(err)
		}
	}

	spec, err := formats.GetFormat(cmd.Context(), format)
	if err != nil {
		return startupErr(err)
	}

	txns, err := statement.Parse(data, spec)
	if err != nil {
		return runtimeErr(fmt.Errorf("%s: %w", path, err))
	}
	analysis, err := statement.Analyze(txns)
	if err != nil {
		return runtimeErr(fmt.Errorf("%s: %w", path, err))
	}

	if export != "" {
		wb, err := statement.Workbook(analysis)
		if err != nil {
			return runtimeErr(err)
		}
		if err := wb.SaveAs(export); err != nil {
			return runtimeErr(fmt.Errorf("writing workbook: %w", err))
		}
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(analysis)
	}

	pretty := term.IsTerminal(int(os.Stdout.Fd()))
	if pretty {
		fmt.Fprintln(out, report.Banner())
	}
	fmt.Fprint(out, report.Render(report.Report{
		Source:   filepath.Base(path),
		Format:   spec.Name,
		Analysis: analysis,
	}, pretty))

	if export != "" {
		fmt.Fprintf(out, "workbook written to %s\n", export)
	}
	return nil
}
