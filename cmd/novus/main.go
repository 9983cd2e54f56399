// Novus — multi-agent research assistant for drug repurposing.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "novus",
	Short: "Novus — multi-agent research assistant for drug repurposing.",
	Long: `Novus answers questions about repurposing existing drugs for new disease
indications. It interprets each message, gathers evidence from clinical,
literature, patent, market, and web sources in parallel, and synthesizes
a grounded answer over a multi-turn conversation.`,
	RunE:          runServe, // Default to server mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, queryCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
