package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/streamshield/person-detection-service/backend"
	"github.com/streamshield/person-detection-service/config"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List backend candidates in fallback order",
	Run: func(cmd *cobra.Command, args []string) {
		preferred := backend.Kind(config.Config.Detection.PreferredBackend)
		for _, c := range backend.Candidates(preferred) {
			fmt.Printf("%-10s available=%-5v needs_device=%v\n",
				c.Kind, c.Available(), c.NeedsDevice)
		}
		fmt.Printf("cpu capabilities: %s\n", backend.CPUCapabilities())
	},
}

func init() {
	rootCmd.AddCommand(backendsCmd)
}
