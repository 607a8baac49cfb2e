package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/passbooklabs/passbook/internal/logging"
	"github.com/passbooklabs/passbook/internal/provision"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Install format packs from a manifest",
	Long: `Provision resolves every requirement in the manifest against a
published index, fetches and verifies each artifact, and commits the whole
set to a loam store in one transaction. Any failure leaves the store exactly
as it was.

Manifest lines are name@constraint, one per line:

    hdfc
    icici@^1.2.0
    axis@1.0.3`,
	Args: cobra.NoArgs,
	RunE: runProvision,
}

func init() {
	rootCmd.AddCommand(provisionCmd)

	provisionCmd.Flags().String("manifest", "packs.txt", "Pack manifest file")
	provisionCmd.Flags().String("index", "", "Pack index: a directory or an HTTP(S) base URL")
	provisionCmd.Flags().String("dest", "formats", "Destination store directory")
	provisionCmd.MarkFlagRequired("index")
}

func runProvision(cmd *cobra.Command, args []string) error {
	manifest, _ := cmd.Flags().GetString("manifest")
	index, _ := cmd.Flags().GetString("index")
	dest, _ := cmd.Flags().GetString("dest")

	level, err := logging.ParseLevel(logLevel(cmd, "info"))
	if err != nil {
		return startupErr(err)
	}
	log := logging.New(level)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := provision.New(provision.OpenSource(index, nil), dest, provision.WithLogger(log))
	installed, err := p.Run(ctx, manifest)
	if err != nil {
		return &ExitError{Code: exitProvision, Err: err}
	}

	out := cmd.OutOrStdout()
	for _, pk := range installed {
		fmt.Fprintf(out, "%s %s sha256:%s\n", pk.Name, pk.Version, pk.Digest[:12])
	}
	fmt.Fprintf(out, "provisioned %d packs into %s\n", len(installed), dest)
	return nil
}
