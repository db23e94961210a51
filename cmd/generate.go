package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SawyerHood/openai-html-stream/internal/charset"
	"github.com/SawyerHood/openai-html-stream/internal/completion"
	"github.com/SawyerHood/openai-html-stream/internal/errors"
	"github.com/SawyerHood/openai-html-stream/internal/htmlstream"
	"github.com/SawyerHood/openai-html-stream/internal/logging"
)

var (
	generateOutput string
	generateModel  string
)

var generateCmd = &cobra.Command{
	Use:   "generate <prompt>",
	Short: "Generate a page with the configured model and stream it out",
	Long: `Send a prompt to the configured chat completions endpoint and stream the
rewritten document to stdout or a file as the model writes it.

Examples:
  htmlstream generate "a landing page for a bakery"
  htmlstream generate -o cats.html --model gpt-4o "a gallery of cats"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "write the document to this file instead of stdout")
	generateCmd.Flags().StringVar(&generateModel, "model", "", "model to use instead of upstream.model")
	addRewriteFlags(generateCmd.Flags())
}

func runGenerate(cmd *cobra.Command, args []string) error {
	bindRewriteFlags(cmd.Flags())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	client := completion.NewClient(cfg.Upstream, logger)
	src, err := client.Stream(ctx, completion.Request{
		Prompt: strings.Join(args, " "),
		Model:  generateModel,
	})
	if stderrors.Is(err, completion.ErrEmptyPrompt) {
		return err
	}
	if err != nil {
		return errors.NewEnhancedError("Completion request failed", err, errors.UpstreamError(err))
	}

	var dst io.Writer = cmd.OutOrStdout()
	if generateOutput != "" {
		f, err := os.Create(generateOutput)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer f.Close()
		dst = f
	}

	out, err := charset.NewWriter(dst, cfg.Stream.Charset)
	if err != nil {
		return err
	}

	op := logging.StartOperation(logger, "generate")
	err = htmlstream.Stream(ctx, out, src, rewriteOptions(cfg)...)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		op.EndWithError(ctx, err)
		return err
	}
	op.End(ctx, "output", generateOutput)
	return nil
}
