package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/SawyerHood/openai-html-stream/internal/htmlcheck"
	"github.com/SawyerHood/openai-html-stream/internal/htmlstream"
	"github.com/SawyerHood/openai-html-stream/internal/source"
)

var (
	checkSizes    []int
	checkWarnings bool
)

var checkCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Verify the rewrite is independent of chunking and well formed",
	Long: `Rewrite the input once per chunk size and verify every run produces the same
document, then inspect that document's structure. A chunk size of 0 feeds the
whole input as one delta. Differences are shown as a coloured diff.

Examples:
  htmlstream check transcript.txt
  htmlstream check --sizes 1,2,7,0 --warnings < transcript.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().IntSliceVar(&checkSizes, "sizes", []int{1, 3, 10, 0}, "chunk sizes in runes to compare (0 = whole input)")
	checkCmd.Flags().BoolVar(&checkWarnings, "warnings", false, "also print accessibility hints")
	addRewriteFlags(checkCmd.Flags())
}

// palette holds the colours used in check output; disabled when stdout is
// not a terminal.
type palette struct {
	ok, bad, warn, insert, remove *color.Color
}

func newPalette(w io.Writer) palette {
	p := palette{
		ok:     color.New(color.FgGreen),
		bad:    color.New(color.FgRed, color.Bold),
		warn:   color.New(color.FgYellow),
		insert: color.New(color.FgGreen, color.Underline),
		remove: color.New(color.FgRed, color.CrossedOut),
	}
	if !isTerminal(w) {
		for _, c := range []*color.Color{p.ok, p.bad, p.warn, p.insert, p.remove} {
			c.DisableColor()
		}
	}
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func runCheck(cmd *cobra.Command, args []string) error {
	bindRewriteFlags(cmd.Flags())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(checkSizes) == 0 {
		return fmt.Errorf("--sizes needs at least one chunk size")
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		in = f
	}
	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	input := string(raw)

	out := cmd.OutOrStdout()
	colors := newPalette(out)
	opts := rewriteOptions(cfg)

	reference, err := htmlstream.Collect(htmlstream.Rewrite(source.FromString(input, checkSizes[0]), opts...))
	if err != nil {
		return err
	}

	mismatches := 0
	for _, size := range checkSizes[1:] {
		got, err := htmlstream.Collect(htmlstream.Rewrite(source.FromString(input, size), opts...))
		if err != nil {
			return err
		}
		if got == reference {
			colors.ok.Fprintf(out, "chunk size %s: identical\n", sizeLabel(size))
			continue
		}
		mismatches++
		colors.bad.Fprintf(out, "chunk size %s differs from chunk size %s:\n", sizeLabel(size), sizeLabel(checkSizes[0]))
		writeDiff(out, colors, reference, got)
	}

	report := htmlcheck.Check(reference)
	for _, problem := range report.Problems {
		colors.bad.Fprintf(out, "problem: %s\n", problem)
	}
	if checkWarnings {
		for _, warning := range report.Warnings {
			colors.warn.Fprintf(out, "warning: %s\n", warning)
		}
	}

	if mismatches > 0 || !report.OK() {
		return fmt.Errorf("check failed: %d chunk size mismatches, %d structural problems",
			mismatches, len(report.Problems))
	}
	colors.ok.Fprintf(out, "ok: %d bytes, %d tokens\n", len(reference), report.Tokens)
	return nil
}

func sizeLabel(size int) string {
	if size <= 0 {
		return "whole"
	}
	return strconv.Itoa(size)
}

// writeDiff prints a character diff of want against got, with insertions
// and deletions highlighted.
func writeDiff(w io.Writer, colors palette, want, got string) {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(want, got, false))

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			b.WriteString(colors.insert.Sprint(d.Text))
		case diffmatchpatch.DiffDelete:
			b.WriteString(colors.remove.Sprint(d.Text))
		default:
			b.WriteString(d.Text)
		}
	}
	fmt.Fprintf(w, "  %s\n", b.String())
}
