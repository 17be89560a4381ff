package cmd

import (
	"github.com/spf13/cobra"

	"github.com/streamshield/person-detection-service/backend"
	"github.com/streamshield/person-detection-service/config"
	"github.com/streamshield/person-detection-service/pipeline"
	"github.com/streamshield/person-detection-service/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP inference service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Config

		if err := backend.InitRuntime(runtimeOptions(cfg.Runtime), log); err != nil {
			return err
		}
		defer backend.ShutdownRuntime()

		pool, err := server.NewPool(cfg.Server.PoolSize, func() (*pipeline.Detector, error) {
			d := pipeline.NewDetector(detectorConfig(cfg.Detection), log)
			if err := d.Initialize(cmd.Context(), cfg.Detection.DeviceIndex); err != nil {
				return nil, err
			}
			return d, nil
		})
		if err != nil {
			return err
		}
		defer pool.Close()

		var seg *pipeline.Segmenter
		if cfg.Segmentation.Path != "" {
			seg = pipeline.NewSegmenter(segmenterConfig(cfg.Segmentation), log)
			if err := seg.Initialize(cmd.Context(), cfg.Segmentation.DeviceIndex); err != nil {
				return err
			}
			defer seg.Dispose()
		}

		return server.New(cfg.Server, pool, seg, log).ListenAndServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
