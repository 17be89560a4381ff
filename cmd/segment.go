package cmd

import (
	"fmt"
	"image/png"
	"os"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/streamshield/person-detection-service/backend"
	"github.com/streamshield/person-detection-service/config"
	"github.com/streamshield/person-detection-service/pipeline"
)

var (
	segmentDevice int
	segmentOut    string
)

var segmentCmd = &cobra.Command{
	Use:   "segment <image>",
	Short: "Run one-shot person segmentation and write the mask as PNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Config
		if cfg.Segmentation.Path == "" {
			return fmt.Errorf("no segmentation model configured")
		}

		if err := backend.InitRuntime(runtimeOptions(cfg.Runtime), log); err != nil {
			return err
		}
		defer backend.ShutdownRuntime()

		img, err := imaging.Open(args[0])
		if err != nil {
			return fmt.Errorf("open image: %w", err)
		}

		seg := pipeline.NewSegmenter(segmenterConfig(cfg.Segmentation), log,
			backend.WithStatusSink(func(phase string) {
				fmt.Fprintln(os.Stderr, phase)
			}))
		if err := seg.Initialize(cmd.Context(), segmentDevice); err != nil {
			return err
		}
		defer seg.Dispose()

		mask, err := seg.Segment(cmd.Context(), img)
		if err != nil {
			return err
		}

		out, err := os.Create(segmentOut)
		if err != nil {
			return err
		}
		defer out.Close()
		return png.Encode(out, mask.Gray())
	},
}

func init() {
	segmentCmd.Flags().IntVar(&segmentDevice, "device", -1, "adapter index for GPU backends")
	segmentCmd.Flags().StringVar(&segmentOut, "out", "mask.png", "output mask path")
	rootCmd.AddCommand(segmentCmd)
}
