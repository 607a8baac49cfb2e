package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "passbook",
	Short: "Passbook provisions dependencies and supervises web workers",
	Long: `Passbook is the bootstrap contract for a container web process: it
provisions format packs from a manifest into a content-addressed store, then
binds one TCP socket and supervises a pool of workers that accept from it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, or error")
}

// logLevel resolves the persistent --log-level flag, falling back to
// fallback when the flag was not given.
func logLevel(cmd *cobra.Command, fallback string) string {
	if cmd.Flags().Changed("log-level") {
		v, _ := cmd.Flags().GetString("log-level")
		return v
	}
	return fallback
}
