package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/commyio/commy/pkg/mesh"
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Manage mesh service registrations",
}

var (
	registerName         string
	registerVersion      string
	registerCapabilities string
	registerTTL          string
)

var servicesRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a service with the mesh coordinator",
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, err := time.ParseDuration(registerTTL)
		if err != nil {
			return fmt.Errorf("invalid --ttl: %w", err)
		}

		reg := mesh.ServiceRegistration{
			Name:         registerName,
			Version:      registerVersion,
			Capabilities: splitCSV(registerCapabilities),
			TTL:          ttl,
		}

		var out map[string]string
		if err := newAPIClient().do("POST", "/api/v1/services", reg, &out); err != nil {
			return err
		}
		printResult(out)
		return nil
	},
}

var servicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Discover registered services",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result mesh.DiscoveryResult
		if err := newAPIClient().do("GET", "/api/v1/services", nil, &result); err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var servicesDeregisterCmd = &cobra.Command{
	Use:   "deregister <service-id>",
	Short: "Remove a service from the mesh",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newAPIClient().do("DELETE", "/api/v1/services/"+args[0], nil, nil)
	},
}

var servicesHeartbeatCmd = &cobra.Command{
	Use:   "heartbeat <service-id>",
	Short: "Refresh a service's liveness window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newAPIClient().do("POST", "/api/v1/services/"+args[0]+"/heartbeat", nil, nil)
	},
}

func init() {
	servicesRegisterCmd.Flags().StringVar(&registerName, "name", "", "service name")
	servicesRegisterCmd.Flags().StringVar(&registerVersion, "version", "", "service version")
	servicesRegisterCmd.Flags().StringVar(&registerCapabilities, "capabilities", "", "comma-separated capability list")
	servicesRegisterCmd.Flags().StringVar(&registerTTL, "ttl", "30s", "liveness TTL")
	_ = servicesRegisterCmd.MarkFlagRequired("name")

	servicesCmd.AddCommand(servicesRegisterCmd, servicesListCmd, servicesDeregisterCmd, servicesHeartbeatCmd)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
