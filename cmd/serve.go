package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SawyerHood/openai-html-stream/internal/completion"
	"github.com/SawyerHood/openai-html-stream/internal/errors"
	"github.com/SawyerHood/openai-html-stream/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve generated pages over HTTP and websockets",
	Long: `Start an HTTP server with a prompt page at /, chunked HTML generation at
/generate?prompt=..., websocket streaming at /ws?prompt=... and /health.

Examples:
  htmlstream serve
  htmlstream serve --port 3000 --host 0.0.0.0`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	addRewriteFlags(serveCmd.Flags())

	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
}

func runServe(cmd *cobra.Command, args []string) error {
	bindRewriteFlags(cmd.Flags())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	srv := server.New(cfg, completion.NewClient(cfg.Upstream, logger), logger)
	if err := srv.Start(ctx); err != nil {
		if strings.Contains(err.Error(), "address already in use") || strings.Contains(err.Error(), "permission denied") {
			return errors.NewEnhancedError("Failed to start server", err,
				errors.ServerStartError(err, cfg.Server.Port))
		}
		return err
	}
	return nil
}
