package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the connected commyd's health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		if err := client.do("GET", "/health", nil, nil); err != nil {
			return err
		}
		fmt.Println("commyd is healthy")
		return nil
	},
}
