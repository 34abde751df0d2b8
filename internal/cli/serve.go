package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/credence/internal/logger"
	"github.com/ppiankov/credence/internal/metrics"
	"github.com/ppiankov/credence/internal/pipeline"
	"github.com/ppiankov/credence/internal/server"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve credibility checks over HTTP",
	Long: `Serve runs the HTTP adapter:
  POST /api/v1/check   JSON {"text": ...} or {"url": ...}, or multipart "image"
  GET  /health         liveness and cache statistics
  GET  /metrics        Prometheus metrics

Example:
  credence serve --addr :8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default from config, :8080)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	m := metrics.New(nil)
	p, closePipeline, err := pipeline.Build(ctx, cfg, m, log)
	if err != nil {
		return err
	}
	defer closePipeline()

	srv, err := server.New(server.ConfigFrom(cfg, version), p, m, log)
	if err != nil {
		return err
	}
	log.Info("starting credence", logger.String("version", version), logger.String("addr", cfg.Server.Addr))
	return srv.Run(ctx)
}
