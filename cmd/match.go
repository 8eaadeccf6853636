package cmd

import (
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var (
	matchAddr       string
	matchMinScore   float64
	matchMaxResults int
	matchSkipRisk   bool
)

//nolint:gochecknoglobals // Cobra boilerplate
var matchCmd = &cobra.Command{
	Use:   "match [requirement|availability] [id]",
	Short: "Query matches for an entity against a running instance",
	Args:  cobra.ExactArgs(2),
	RunE:  runMatch,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.Flags().StringVar(&matchAddr, "addr", "http://localhost:8080", "Operator API address")
	matchCmd.Flags().Float64Var(&matchMinScore, "min-score", -1, "Minimum score override in [0,1]")
	matchCmd.Flags().IntVar(&matchMaxResults, "max-results", 0, "Result cap")
	matchCmd.Flags().BoolVar(&matchSkipRisk, "skip-risk", false, "Skip the risk check")
}

func runMatch(_ *cobra.Command, args []string) error {
	side, id := args[0], args[1]
	if side != "requirement" && side != "availability" {
		return fmt.Errorf("first argument must be 'requirement' or 'availability', got %q", side)
	}

	req := resty.New().R()
	if matchMinScore >= 0 {
		req.SetQueryParam("min_score", fmt.Sprintf("%g", matchMinScore))
	}
	if matchMaxResults > 0 {
		req.SetQueryParam("max_results", fmt.Sprintf("%d", matchMaxResults))
	}
	if matchSkipRisk {
		req.SetQueryParam("include_risk", "false")
	}

	resp, err := req.Get(fmt.Sprintf("%s/api/matches/%s/%s", matchAddr, side, id))
	if err != nil {
		return fmt.Errorf("query matches: %w", err)
	}
	fmt.Println(resp.String())
	return nil
}
