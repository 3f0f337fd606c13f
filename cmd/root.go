package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gateway-hub",
	Short: "Payment gateway hub",
	Long:  "A payment aggregation service that normalizes gateway webhooks, reconciles payment statuses, polls push-unreliable gateways, and computes payout eligibility.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
