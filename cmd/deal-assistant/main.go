package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "deal-assistant",
	Short: "Conversational deal intake for the CRM",
	Long: `deal-assistant walks a user through creating a CRM deal one question
at a time: title, company, amount, stage, close date and contacts.

Slot filling runs either in-process (local variant) or behind a chat
endpoint that keeps the conversation in an opaque state token (delegated
variant).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (or set DEAL_ASSISTANT_CONFIG)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
