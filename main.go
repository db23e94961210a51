// Command htmlstream rewrites streamed model output into well-formed HTML.
package main

import (
	"os"

	"github.com/SawyerHood/openai-html-stream/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
