package completion

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/SawyerHood/openai-html-stream/internal/errors"
	"github.com/SawyerHood/openai-html-stream/internal/htmlstream"
	"github.com/SawyerHood/openai-html-stream/internal/logging"
)

const doneSentinel = "[DONE]"

// maxLine bounds a single server-sent event line.
const maxLine = 1 << 20

type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// content returns the first choice's delta text, or "" when absent.
func (c *chunk) content() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// events adapts a server-sent event body into a sequence of text deltas.
func (c *Client) events(ctx context.Context, body io.ReadCloser) htmlstream.Source {
	return func(yield func(string, error) bool) {
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

		for scanner.Scan() {
			data, ok := dataField(scanner.Text())
			if !ok {
				continue
			}
			if data == doneSentinel {
				return
			}

			delta, err := decodeChunk(data)
			if err != nil {
				c.logger.Error(ctx, err, "Malformed stream chunk")
				yield("", err)
				return
			}
			if !yield(delta, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			c.logger.Error(ctx, err, "Reading completion stream failed")
			yield("", errors.NewUpstreamError(errors.ErrCodeUpstreamRead, "reading event stream", err))
		}
	}
}

// dataField extracts the payload of a "data:" line. Blank lines, comments
// and other fields are skipped.
func dataField(line string) (string, bool) {
	line = strings.TrimRight(line, "\r")
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return "", false
	}
	return strings.TrimPrefix(data, " "), true
}

func decodeChunk(data string) (string, error) {
	var c chunk
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return "", errors.NewProtocolError(errors.ErrCodeMalformedFrame, "decoding stream chunk", err).
			WithContext("frame", logging.Truncate(data, maxFrameExcerpt))
	}
	if c.Error != nil {
		return "", errors.NewUpstreamError(errors.ErrCodeUpstreamRead, "upstream reported: "+c.Error.Message, nil).
			WithContext("type", c.Error.Type)
	}
	return c.content(), nil
}
