package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamErrorMessage(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewUpstreamError(ErrCodeUpstreamRead, "reading event stream", cause).WithOp("generate")

	assert.Equal(t, "[ERR_UPSTREAM_READ] generate: reading event stream: connection reset", err.Error())
	assert.Same(t, cause, errors.Unwrap(err))
	assert.True(t, err.Retryable)
}

func TestStreamErrorIs(t *testing.T) {
	err := fmt.Errorf("outer: %w", WrapWrite(errors.New("broken pipe"), "writing"))

	assert.True(t, errors.Is(err, &StreamError{Kind: KindWrite, Code: ErrCodeDownstreamWrite}))
	assert.False(t, errors.Is(err, &StreamError{Kind: KindWrite, Code: ErrCodeUpstreamRead}))
}

func TestConstructorKinds(t *testing.T) {
	tests := []struct {
		err       *StreamError
		kind      ErrorKind
		retryable bool
	}{
		{NewUpstreamError("c", "m", nil), KindUpstream, true},
		{NewProtocolError("c", "m", nil), KindProtocol, false},
		{NewValidationError("c", "m"), KindValidation, false},
		{NewInternalError("c", "m", nil), KindInternal, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.err.Kind)
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, KindUpstream, "c", "m"))

	plain := WrapUpstream(errors.New("eof"), "reading input delta")
	assert.True(t, plain.Retryable)
	assert.Equal(t, ErrCodeUpstreamRead, plain.Code)

	inner := NewProtocolError(ErrCodeMalformedFrame, "decoding", nil).WithContext("frame", "{oops")
	outer := WrapUpstream(inner, "reading input delta")
	assert.False(t, outer.Retryable, "retry hint comes from the inner error")
	assert.Equal(t, "{oops", outer.Context["frame"])
	assert.True(t, HasKind(outer, KindProtocol))
	assert.True(t, HasKind(outer, KindUpstream))
	assert.False(t, HasKind(outer, KindWrite))

	assert.Equal(t, KindWrite, WrapWrite(errors.New("pipe"), "w").Kind)
	assert.Equal(t, KindConfig, WrapConfig(errors.New("bad"), "c").Kind)
}

func TestHasKindPlainError(t *testing.T) {
	assert.False(t, HasKind(errors.New("x"), KindUpstream))
	assert.False(t, HasKind(nil, KindUpstream))
}

func TestGetRootCause(t *testing.T) {
	root := errors.New("root")
	err := fmt.Errorf("a: %w", WrapUpstream(root, "b"))
	assert.Same(t, root, GetRootCause(err))
}

type recordingLogger struct {
	errors []string
	warns  []string
	fields [][]interface{}
}

func (r *recordingLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	r.errors = append(r.errors, msg)
	r.fields = append(r.fields, fields)
}

func (r *recordingLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	r.warns = append(r.warns, msg)
}

func TestErrorHandler(t *testing.T) {
	logger := &recordingLogger{}
	h := NewErrorHandler(logger)
	ctx := context.Background()

	h.Handle(ctx, nil)
	h.Handle(ctx, context.Canceled)
	h.Handle(ctx, WrapUpstream(context.Canceled, "reading"))
	assert.Empty(t, logger.errors)
	assert.Empty(t, logger.warns)

	h.Handle(ctx, errors.New("plain"))
	h.Handle(ctx, NewUpstreamError(ErrCodeUpstreamStatus, "502", nil))
	h.Handle(ctx, WrapWrite(errors.New("pipe"), "writing"))
	h.Handle(ctx, NewValidationError(ErrCodeUnknownCharset, "unknown charset"))

	assert.Equal(t, []string{"Unhandled error occurred", "Stream failed"}, logger.errors)
	assert.Equal(t, []string{"Downstream write failed", "Rejected request"}, logger.warns)
}

func TestErrorHandlerInspectsChain(t *testing.T) {
	logger := &recordingLogger{}
	h := NewErrorHandler(logger)
	ctx := context.Background()

	h.Handle(ctx, WrapUpstream(WrapWrite(errors.New("pipe"), "writing"), "copying"))
	assert.Equal(t, []string{"Downstream write failed"}, logger.warns)
	assert.Empty(t, logger.errors)

	h.Handle(ctx, fmt.Errorf("generate: %w", WrapUpstream(errors.New("connection reset"), "reading event stream")))
	require.Len(t, logger.fields, 1)
	fields := logger.fields[0]
	assert.Contains(t, fields, "connection reset")
	assert.Contains(t, fields, true)
}

func TestValidationErrorCollection(t *testing.T) {
	var vec ValidationErrorCollection
	assert.False(t, vec.HasErrors())
	assert.Nil(t, vec.ToStreamError())
	assert.Equal(t, "no validation errors", vec.Error())

	vec.AddField("server.port", 70000, "must be in range 0-65535")
	assert.Equal(t, "validation error in field 'server.port': must be in range 0-65535", vec.Error())

	vec.AddField("log.level", "loud", "unknown level", "debug", "info")
	assert.Equal(t, "validation failed with 2 errors", vec.Error())

	se := vec.ToStreamError()
	require.NotNil(t, se)
	assert.Equal(t, KindConfig, se.Kind)
	assert.Equal(t, ErrCodeConfigInvalid, se.Code)
	assert.Contains(t, se.Message, "server.port")
	assert.Contains(t, se.Message, "log.level")

	detail := se.Context["log.level"].(map[string]interface{})
	assert.Equal(t, "loud", detail["value"])
	assert.Equal(t, []string{"debug", "info"}, detail["suggestions"])
}

func TestSuggestions(t *testing.T) {
	t.Run("port in use", func(t *testing.T) {
		s := ServerStartError(errors.New("listen tcp :8080: bind: address already in use"), 8080)
		require.Len(t, s, 2)
		assert.Equal(t, "htmlstream serve --port 8081", s[1].Command)
	})

	t.Run("privileged port", func(t *testing.T) {
		s := ServerStartError(errors.New("listen tcp :80: bind: permission denied"), 80)
		require.Len(t, s, 1)
		assert.Equal(t, "Use unprivileged port", s[0].Title)
	})

	t.Run("config fields", func(t *testing.T) {
		var vec ValidationErrorCollection
		vec.AddField("stream.charset", "klingon", "unknown charset", "utf-8")
		s := ConfigurationError(fmt.Errorf("invalid configuration: %w", vec.ToStreamError()), ".htmlstream.yml")

		var titles []string
		for _, sug := range s {
			titles = append(titles, sug.Title)
		}
		assert.Contains(t, titles, "Fix stream.charset")
		assert.Contains(t, titles, "Check configuration file")
	})

	t.Run("upstream status", func(t *testing.T) {
		tests := []struct {
			status int
			title  string
		}{
			{401, "Check the API key"},
			{404, "Check the base URL and model"},
			{429, "Slow down"},
			{503, "Retry later"},
		}
		for _, tt := range tests {
			err := NewUpstreamError(ErrCodeUpstreamStatus, "rejected", nil).WithContext("status", tt.status)
			s := UpstreamError(err)
			require.Len(t, s, 1)
			assert.Equal(t, tt.title, s[0].Title)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		s := UpstreamError(errors.New("dial tcp 127.0.0.1:1: connect: connection refused"))
		require.Len(t, s, 1)
		assert.Equal(t, "Check upstream.base_url", s[0].Title)
	})
}

func TestEnhancedError(t *testing.T) {
	cause := errors.New("bind: address already in use")
	err := NewEnhancedError("Failed to start server", cause, ServerStartError(cause, 8080))

	assert.ErrorIs(t, err, cause)
	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "Failed to start server: bind: address already in use\n\nSuggestions:\n"))
	assert.Contains(t, msg, "  1. Port already in use\n")
	assert.Contains(t, msg, "     Run: lsof -i :8080\n")

	assert.Equal(t, "Plain: x", NewEnhancedError("Plain", errors.New("x"), nil).Error())
}
