package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SawyerHood/openai-html-stream/internal/source"
)

// newTestCommand returns a command with captured output and the given
// stdin, plus the rewrite flags every run function binds.
func newTestCommand(stdin string) (*cobra.Command, *bytes.Buffer) {
	viper.Reset()
	cmd := &cobra.Command{}
	addRewriteFlags(cmd.Flags())
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	return cmd, &out
}

const transcript = "Here is your page:\n```html\n<html><head><title>t</title></head><body><p>hi</p></body></html>\n```"

const document = "<!DOCTYPE html><html><head><title>t</title></head><body><p>hi</p></body></html>"

func TestRunStreamStdin(t *testing.T) {
	cmd, out := newTestCommand(transcript)
	streamChunkSize, streamFollow = 3, false
	defer viper.Reset()

	require.NoError(t, runStream(cmd, nil))
	assert.Equal(t, document, out.String())
}

func TestRunStreamFileWithFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(path, []byte("<body>café"), 0o644))

	cmd, out := newTestCommand("")
	streamChunkSize, streamFollow = source.DefaultChunkSize, false
	defer viper.Reset()
	require.NoError(t, cmd.Flags().Set("inject", "<base href=\"/\">"))
	require.NoError(t, cmd.Flags().Set("charset", "latin1"))

	require.NoError(t, runStream(cmd, []string{path}))
	assert.Equal(t, "<!DOCTYPE html><html><head><base href=\"/\"></head><body>caf\xe9</html>", out.String())
}

func TestRunStreamFollowNeedsFile(t *testing.T) {
	cmd, _ := newTestCommand("")
	streamFollow = true
	defer func() { streamFollow = false }()
	defer viper.Reset()

	assert.Error(t, runStream(cmd, nil))
}

func TestRunCheck(t *testing.T) {
	cmd, out := newTestCommand(transcript)
	checkSizes, checkWarnings = []int{1, 3, 10, 0}, true
	defer viper.Reset()

	require.NoError(t, runCheck(cmd, nil))
	text := out.String()
	assert.Contains(t, text, "chunk size 3: identical")
	assert.Contains(t, text, "chunk size whole: identical")
	assert.Contains(t, text, "warning: html-has-lang")
	assert.Contains(t, text, fmt.Sprintf("ok: %d bytes", len(document)))
}

func TestRunCheckReportsProblems(t *testing.T) {
	cmd, out := newTestCommand("<body>a</body><body>b</body></html>")
	checkSizes, checkWarnings = []int{0, 2}, false
	defer viper.Reset()

	err := runCheck(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 structural problems")
	assert.Contains(t, out.String(), "problem: <body> appears 2 times")
	assert.NotContains(t, out.String(), "warning:")
}

func TestWriteDiff(t *testing.T) {
	var out bytes.Buffer
	writeDiff(&out, newPalette(&out), "<p>cat</p>", "<p>cart</p>")
	assert.Equal(t, "  <p>cart</p>\n", out.String())
}

func TestSizeLabel(t *testing.T) {
	assert.Equal(t, "whole", sizeLabel(0))
	assert.Equal(t, "7", sizeLabel(7))
}

func TestRunGenerate(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, delta := range []string{"<html><he", "ad></head><body>gen</body></html>"} {
			b, _ := json.Marshal(map[string]interface{}{
				"choices": []interface{}{map[string]interface{}{"delta": map[string]string{"content": delta}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", b)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	output := filepath.Join(t.TempDir(), "page.html")
	cmd, _ := newTestCommand("")
	defer viper.Reset()
	viper.Set("upstream.base_url", upstream.URL)
	generateOutput, generateModel = output, ""
	defer func() { generateOutput = "" }()

	require.NoError(t, runGenerate(cmd, []string{"a", "page"}))
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "<!DOCTYPE html><html><head></head><body>gen</body></html>", string(data))
}

func TestRunGenerateUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer upstream.Close()

	cmd, _ := newTestCommand("")
	defer viper.Reset()
	viper.Set("upstream.base_url", upstream.URL)
	generateOutput, generateModel = "", ""

	err := runGenerate(cmd, []string{"p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Completion request failed")
	assert.Contains(t, err.Error(), "Check the API key")
}

func TestRunConfigShow(t *testing.T) {
	cmd, out := newTestCommand("")
	defer viper.Reset()
	viper.Set("upstream.api_key", "sk-very-secret")

	require.NoError(t, runConfigShow(cmd, nil))
	assert.Contains(t, out.String(), "[REDACTED]...cret")
	assert.NotContains(t, out.String(), "sk-very-secret")
	assert.Contains(t, out.String(), "model: gpt-4o-mini")
}

func TestRunConfigValidate(t *testing.T) {
	cmd, out := newTestCommand("")
	defer viper.Reset()

	require.NoError(t, runConfigValidate(cmd, nil))
	assert.Contains(t, out.String(), "Configuration is valid")

	viper.Set("server.port", 99999)
	err := runConfigValidate(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to load configuration")
	assert.Contains(t, err.Error(), "Fix server.port")
}

func TestRunVersionCommand(t *testing.T) {
	cmd, out := newTestCommand("")
	defer func() { versionFormat, versionShort = "text", false }()

	versionFormat, versionShort = "json", false
	require.NoError(t, runVersionCommand(cmd, nil))
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")

	out.Reset()
	versionFormat = "text"
	require.NoError(t, runVersionCommand(cmd, nil))
	assert.True(t, strings.HasPrefix(out.String(), "htmlstream\nVersion: "))

	versionFormat = "xml"
	assert.Error(t, runVersionCommand(cmd, nil))
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"stream", "generate", "serve", "check", "config", "version"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}
