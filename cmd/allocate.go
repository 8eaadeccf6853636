package cmd

import (
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var allocateAddr string

//nolint:gochecknoglobals // Cobra boilerplate
var allocateCmd = &cobra.Command{
	Use:   "allocate [availability-id] [quantity] [requirement-id]",
	Short: "Allocate quantity from an availability against a running instance",
	Args:  cobra.ExactArgs(3),
	RunE:  runAllocate,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(allocateCmd)
	allocateCmd.Flags().StringVar(&allocateAddr, "addr", "http://localhost:8080", "Operator API address")
}

func runAllocate(_ *cobra.Command, args []string) error {
	qty, err := strconv.ParseFloat(args[1], 64)
	if err != nil || qty <= 0 {
		return fmt.Errorf("quantity must be a positive number, got %q", args[1])
	}

	resp, err := resty.New().R().
		SetBody(map[string]any{
			"availability_id": args[0],
			"requested_qty":   qty,
			"requirement_id":  args[2],
		}).
		Post(allocateAddr + "/api/allocations")
	if err != nil {
		return fmt.Errorf("allocate: %w", err)
	}
	fmt.Println(resp.String())
	return nil
}
