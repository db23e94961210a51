package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorSuggestion represents a suggestion for fixing an error
type ErrorSuggestion struct {
	Title       string
	Description string
	Command     string
	Example     string
}

// ServerStartError generates suggestions for server startup failures
func ServerStartError(err error, port int) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{}

	errStr := err.Error()

	if strings.Contains(errStr, "address already in use") {
		suggestions = append(suggestions,
			ErrorSuggestion{
				Title:       "Port already in use",
				Description: fmt.Sprintf("Port %d is already being used by another process", port),
				Command:     fmt.Sprintf("lsof -i :%d", port),
			},
			ErrorSuggestion{
				Title:       "Use a different port",
				Description: "Start the server on a different port",
				Command:     fmt.Sprintf("htmlstream serve --port %d", port+1),
			},
		)
	}

	if strings.Contains(errStr, "permission denied") && port < 1024 {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Use unprivileged port",
			Description: "Ports below 1024 require root privileges",
			Command:     "htmlstream serve --port 8080",
		})
	}

	return suggestions
}

// ConfigurationError generates suggestions for configuration issues
func ConfigurationError(err error, configPath string) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "Inspect the effective configuration",
			Description: "Defaults, the config file and HTMLSTREAM_ variables are merged",
			Command:     "htmlstream config show",
		},
	}
	if configPath != "" {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:   "Check configuration file",
			Command: "cat " + configPath,
		})
	}

	var se *StreamError
	if errors.As(err, &se) {
		for field, detail := range se.Context {
			d, ok := detail.(map[string]interface{})
			if !ok {
				continue
			}
			hints, _ := d["suggestions"].([]string)
			suggestions = append(suggestions, ErrorSuggestion{
				Title:       "Fix " + field,
				Description: fmt.Sprintf("current value: %v", d["value"]),
				Example:     strings.Join(hints, ", "),
			})
		}
	}

	if strings.Contains(err.Error(), "yaml") || strings.Contains(err.Error(), "unmarshal") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Fix YAML syntax",
			Description: "There's a syntax error in your YAML configuration",
			Example:     "Use proper indentation and avoid tabs",
		})
	}

	return suggestions
}

// UpstreamError generates suggestions for a failed completion request.
func UpstreamError(err error) []ErrorSuggestion {
	var suggestions []ErrorSuggestion

	status := 0
	var se *StreamError
	if errors.As(err, &se) {
		status, _ = se.Context["status"].(int)
	}

	switch {
	case status == 401 || status == 403:
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Check the API key",
			Description: "The upstream rejected the credentials",
			Example:     "export HTMLSTREAM_UPSTREAM_API_KEY=sk-...",
		})
	case status == 404:
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Check the base URL and model",
			Description: "The endpoint or model does not exist",
			Example:     "upstream:\n  base_url: https://api.openai.com/v1\n  model: gpt-4o-mini",
		})
	case status == 429:
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Slow down",
			Description: "The upstream is rate limiting requests",
			Example:     "upstream:\n  requests_per_second: 0.5",
		})
	case status >= 500:
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Retry later",
			Description: "The upstream reported a server error",
		})
	}

	if strings.Contains(err.Error(), "connection refused") || strings.Contains(err.Error(), "no such host") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Check upstream.base_url",
			Description: "The upstream host could not be reached",
			Command:     "htmlstream config show",
		})
	}

	return suggestions
}

// FormatSuggestions formats suggestions into a user-friendly string
func FormatSuggestions(title string, suggestions []ErrorSuggestion) string {
	if len(suggestions) == 0 {
		return title
	}

	var output strings.Builder
	output.WriteString(title + "\n\n")
	output.WriteString("Suggestions:\n")

	for i, suggestion := range suggestions {
		output.WriteString(fmt.Sprintf("  %d. %s\n", i+1, suggestion.Title))
		if suggestion.Description != "" {
			output.WriteString(fmt.Sprintf("     %s\n", suggestion.Description))
		}
		if suggestion.Command != "" {
			output.WriteString(fmt.Sprintf("     Run: %s\n", suggestion.Command))
		}
		if suggestion.Example != "" {
			output.WriteString(fmt.Sprintf("     Example: %s\n", suggestion.Example))
		}
		output.WriteString("\n")
	}

	return output.String()
}

// EnhancedError wraps an error with suggestions
type EnhancedError struct {
	OriginalError error
	Title         string
	Suggestions   []ErrorSuggestion
}

func (e *EnhancedError) Error() string {
	title := e.Title
	if e.OriginalError != nil {
		title += ": " + e.OriginalError.Error()
	}
	return FormatSuggestions(title, e.Suggestions)
}

func (e *EnhancedError) Unwrap() error {
	return e.OriginalError
}

func NewEnhancedError(title string, originalError error, suggestions []ErrorSuggestion) *EnhancedError {
	return &EnhancedError{
		OriginalError: originalError,
		Title:         title,
		Suggestions:   suggestions,
	}
}
