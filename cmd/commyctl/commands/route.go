package commands

import (
	"github.com/spf13/cobra"

	"github.com/commyio/commy/pkg/mesh"
)

var (
	routeNamePattern string
	routeHashContext string
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Resolve a routing decision for a discovery query",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := struct {
			Query       mesh.DiscoveryQuery `json:"query"`
			HashContext string               `json:"hash_context"`
		}{
			Query:       mesh.DiscoveryQuery{NamePattern: routeNamePattern},
			HashContext: routeHashContext,
		}

		var result mesh.LoadBalanceResult
		if err := newAPIClient().do("POST", "/api/v1/route", body, &result); err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

func init() {
	routeCmd.Flags().StringVar(&routeNamePattern, "name", "", "service name to match")
	routeCmd.Flags().StringVar(&routeHashContext, "hash-context", "", "consistent-hash key, if the mesh uses that algorithm")
}
