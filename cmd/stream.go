package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/SawyerHood/openai-html-stream/internal/charset"
	"github.com/SawyerHood/openai-html-stream/internal/htmlstream"
	"github.com/SawyerHood/openai-html-stream/internal/source"
)

var (
	streamChunkSize   int
	streamFollow      bool
	streamIdleTimeout time.Duration
)

var streamCmd = &cobra.Command{
	Use:   "stream [file]",
	Short: "Rewrite text from a file or stdin into an HTML document",
	Long: `Rewrite model output read from a file or stdin and write the document to stdout.

With --follow the file is tailed as another process appends to it, and the
command ends once </html> arrives, the file stops growing for --idle-timeout,
or it is interrupted.

Examples:
  htmlstream stream transcript.txt
  curl -sN ... | htmlstream stream --inject '<base href="/">'
  htmlstream stream --follow --charset windows-1252 live.txt > page.html`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)

	streamCmd.Flags().IntVar(&streamChunkSize, "chunk-size", source.DefaultChunkSize, "bytes read per input delta")
	streamCmd.Flags().BoolVarP(&streamFollow, "follow", "f", false, "keep reading as the file grows")
	streamCmd.Flags().DurationVar(&streamIdleTimeout, "idle-timeout", source.DefaultIdleTimeout, "with --follow, stop after the file is idle this long")
	addRewriteFlags(streamCmd.Flags())
}

func runStream(cmd *cobra.Command, args []string) error {
	bindRewriteFlags(cmd.Flags())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	var src htmlstream.Source
	switch {
	case streamFollow:
		if len(args) == 0 {
			return fmt.Errorf("--follow needs a file argument")
		}
		src = source.Tail(ctx, args[0], source.TailOptions{
			IdleTimeout: streamIdleTimeout,
			ChunkSize:   streamChunkSize,
		})
	case len(args) == 1:
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		src = source.FromReader(f, streamChunkSize)
	default:
		src = source.FromReader(cmd.InOrStdin(), streamChunkSize)
	}

	out, err := charset.NewWriter(cmd.OutOrStdout(), cfg.Stream.Charset)
	if err != nil {
		return err
	}

	logger.Debug(ctx, "Rewriting input", "follow", streamFollow, "charset", cfg.Stream.Charset)
	if err := htmlstream.Stream(ctx, out, src, rewriteOptions(cfg)...); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
