package cmd

import (
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var webhookAddr string

//nolint:gochecknoglobals // Cobra boilerplate
var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Webhook delivery operations",
}

//nolint:gochecknoglobals // Cobra boilerplate
var webhookStatsCmd = &cobra.Command{
	Use:   "stats [org-id]",
	Short: "Show delivery stats for an organization",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		resp, err := resty.New().R().Get(webhookAddr + "/api/webhooks/stats/" + args[0])
		if err != nil {
			return fmt.Errorf("fetch stats: %w", err)
		}
		fmt.Println(resp.String())
		return nil
	},
}

//nolint:gochecknoglobals // Cobra boilerplate
var webhookDLQListCmd = &cobra.Command{
	Use:   "dlq-list [org-id]",
	Short: "List dead-lettered deliveries for an organization",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		resp, err := resty.New().R().Get(webhookAddr + "/api/webhooks/dlq/" + args[0])
		if err != nil {
			return fmt.Errorf("list dlq: %w", err)
		}
		fmt.Println(resp.String())
		return nil
	},
}

//nolint:gochecknoglobals // Cobra boilerplate
var webhookDLQRetryCmd = &cobra.Command{
	Use:   "dlq-retry [org-id] [delivery-id]",
	Short: "Requeue a dead-lettered delivery",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		resp, err := resty.New().R().
			Post(fmt.Sprintf("%s/api/webhooks/dlq/%s/%s/retry", webhookAddr, args[0], args[1]))
		if err != nil {
			return fmt.Errorf("retry dlq item: %w", err)
		}
		fmt.Println(resp.String())
		return nil
	},
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(webhookCmd)
	webhookCmd.AddCommand(webhookStatsCmd, webhookDLQListCmd, webhookDLQRetryCmd)
	webhookCmd.PersistentFlags().StringVar(&webhookAddr, "addr", "http://localhost:8080", "Operator API address")
}
