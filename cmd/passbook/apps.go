package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/passbooklabs/passbook/internal/apps/analyzer"
	"github.com/passbooklabs/passbook/pkg/apps"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List the registered applications",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range appRegistry().Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func init() {
	rootCmd.AddCommand(appsCmd)
}

// appRegistry collects every built-in application. Supervisor and worker
// halves resolve against the same set, so an app-ref that passes startup
// validation always resolves inside the worker too.
func appRegistry() *apps.Registry {
	reg := apps.NewRegistry()
	analyzer.Register(reg)
	return reg
}
