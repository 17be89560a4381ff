package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/streamshield/person-detection-service/backend"
	"github.com/streamshield/person-detection-service/config"
	"github.com/streamshield/person-detection-service/pipeline"
)

var detectDevice int

var detectCmd = &cobra.Command{
	Use:   "detect <image>",
	Short: "Run one-shot detection on an image file and print JSON boxes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Config

		if err := backend.InitRuntime(runtimeOptions(cfg.Runtime), log); err != nil {
			return err
		}
		defer backend.ShutdownRuntime()

		img, err := imaging.Open(args[0])
		if err != nil {
			return fmt.Errorf("open image: %w", err)
		}

		det := pipeline.NewDetector(detectorConfig(cfg.Detection), log,
			backend.WithStatusSink(func(phase string) {
				fmt.Fprintln(os.Stderr, phase)
			}))
		if err := det.Initialize(cmd.Context(), detectDevice); err != nil {
			return err
		}
		defer det.Dispose()

		boxes, err := det.Detect(cmd.Context(), img)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(boxes)
	},
}

func init() {
	detectCmd.Flags().IntVar(&detectDevice, "device", -1, "adapter index for GPU backends")
	rootCmd.AddCommand(detectCmd)
}
