package server

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"

	"github.com/SawyerHood/openai-html-stream/internal/charset"
	"github.com/SawyerHood/openai-html-stream/internal/completion"
	"github.com/SawyerHood/openai-html-stream/internal/htmlstream"
	"github.com/SawyerHood/openai-html-stream/internal/logging"
	"github.com/SawyerHood/openai-html-stream/internal/version"
)

// maxCloseReason is the websocket limit on close frame reasons, in bytes.
const maxCloseReason = 123

func (s *Server) rewriteOptions() []htmlstream.Option {
	return []htmlstream.Option{htmlstream.WithInjectIntoHead(s.config.Stream.InjectIntoHead)}
}

// handleGenerate streams the rewritten document for ?prompt= as chunked
// HTML. Failures before the first byte become a 502; later failures end the
// response early.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := s.requestLogger(r)
	prompt := r.URL.Query().Get("prompt")

	src, err := s.generator.Stream(ctx, completion.Request{Prompt: prompt})
	if stderrors.Is(err, completion.ErrEmptyPrompt) {
		http.Error(w, "missing prompt", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.errHandler.Handle(ctx, err)
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}

	tw := &trackingWriter{w: w}
	cw, err := charset.NewWriter(tw, s.config.Stream.Charset)
	if err != nil {
		s.errHandler.Handle(ctx, err)
		http.Error(w, "unsupported charset", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", charset.ContentType(s.config.Stream.Charset))
	w.Header().Set("Cache-Control", "no-cache")

	op := logging.StartOperation(logger, "generate")
	err = htmlstream.Stream(ctx, cw, src, s.rewriteOptions()...)
	if closeErr := cw.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		op.EndWithError(ctx, err, "bytes", tw.n)
		if tw.n == 0 {
			http.Error(w, "upstream stream failed", http.StatusBadGateway)
		}
		return
	}
	op.End(ctx, "bytes", tw.n)
}

// trackingWriter counts bytes so the handler knows whether the response has
// started.
type trackingWriter struct {
	w http.ResponseWriter
	n int
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	t.n += n
	return n, err
}

func (t *trackingWriter) Flush() {
	if t.n == 0 {
		return
	}
	if f, ok := t.w.(http.Flusher); ok {
		f.Flush()
	}
}

var _ io.Writer = (*trackingWriter)(nil)

// handleWebSocket streams the rewritten document for ?prompt= as websocket
// text messages, one per fragment, ending with a normal closure.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		logger.Warn(r.Context(), err, "WebSocket upgrade rejected", "origin", r.Header.Get("Origin"))
		return
	}
	s.trackClient(conn)
	defer s.untrackClient(conn)

	// Nothing is read from the client; CloseRead handles control frames and
	// cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	src, err := s.generator.Stream(ctx, completion.Request{Prompt: r.URL.Query().Get("prompt")})
	if stderrors.Is(err, completion.ErrEmptyPrompt) {
		conn.Close(websocket.StatusPolicyViolation, "missing prompt")
		return
	}
	if err != nil {
		s.errHandler.Handle(ctx, err)
		conn.Close(websocket.StatusInternalError, closeReason(err))
		return
	}

	op := logging.StartOperation(logger, "websocket")
	fragments := 0
	for fragment, err := range htmlstream.Rewrite(src, s.rewriteOptions()...) {
		if err != nil {
			op.EndWithError(ctx, err, "fragments", fragments)
			conn.Close(websocket.StatusInternalError, closeReason(err))
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, []byte(fragment)); err != nil {
			op.EndWithError(ctx, err, "fragments", fragments)
			return
		}
		fragments++
	}

	op.End(ctx, "fragments", fragments)
	conn.Close(websocket.StatusNormalClosure, "")
}

// closeReason fits err into a close frame without splitting a rune.
func closeReason(err error) string {
	msg := err.Error()
	if len(msg) <= maxCloseReason {
		return msg
	}
	cut := maxCloseReason
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

// handleHealth returns the server health status for health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"version":    version.GetVersion(),
		"build_info": version.GetBuildInfo(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.requestLogger(r).Warn(r.Context(), err, "Failed to encode health response")
	}
}
