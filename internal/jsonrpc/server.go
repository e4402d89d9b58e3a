package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
)

// Server handles JSON-RPC 2.0 requests over a Transport.
type Server struct {
	registry  *MethodRegistry
	publisher *Publisher
	logger    *slog.Logger
}

// NewServer creates a JSON-RPC server with the given method registry.
func NewServer(registry *MethodRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{registry: registry, logger: logger}
}

// WithPublisher attaches every served transport to p for the duration of
// the connection, so host notifications reach it.
func (s *Server) WithPublisher(p *Publisher) *Server {
	s.publisher = p
	return s
}

// ServeTransport reads requests from the transport and writes responses.
// It runs until the transport's reader returns io.EOF or a read error.
// Lines that are not valid JSON get a parse error response and are skipped.
func (s *Server) ServeTransport(t *Transport) {
	ctx := context.Background()

	if s.publisher != nil {
		detach := s.publisher.Attach(t)
		defer detach()
	}

	for {
		req, rawJSON, err := t.ReadRequest()
		if err != nil {
			if errors.Is(err, ErrInvalidJSON) {
				s.logger.Debug("parse error", "error", err)
				if !s.write(t, &Response{
					JSONRPC: "2.0",
					Error:   ErrParseError(err.Error()),
					ID:      json.RawMessage("null"),
				}) {
					return
				}
				continue
			}
			if err != io.EOF {
				s.logger.Debug("read error", "error", err)
			}
			return
		}

		// Requests without an "id" key are notifications and get no response.
		isNotification := !hasIDField(rawJSON)

		if req.JSONRPC != "2.0" {
			if isNotification {
				continue
			}
			if !s.write(t, &Response{
				JSONRPC: "2.0",
				Error:   ErrInvalidRequest("jsonrpc field must be \"2.0\""),
				ID:      req.ID,
			}) {
				return
			}
			continue
		}

		handler := s.registry.Lookup(req.Method)
		if handler == nil {
			if isNotification {
				continue
			}
			if !s.write(t, &Response{
				JSONRPC: "2.0",
				Error:   ErrMethodNotFound(req.Method),
				ID:      req.ID,
			}) {
				return
			}
			continue
		}

		result, rpcErr := handler(ctx, req.Params)
		if isNotification {
			if rpcErr != nil {
				s.logger.Warn("notification failed", "method", req.Method, "error", rpcErr.Message, "data", rpcErr.Data)
			}
			continue
		}

		resp := &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
		}
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			resp.Result = result
		}
		if !s.write(t, resp) {
			return
		}
	}
}

func (s *Server) write(t *Transport, resp *Response) bool {
	if err := t.WriteResponse(resp); err != nil {
		s.logger.Debug("write error", "error", err)
		return false
	}
	return true
}

// hasIDField checks whether the raw JSON contains an "id" key at the top level.
func hasIDField(raw []byte) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	_, exists := obj["id"]
	return exists
}

// ServeStdio runs the server on stdin/stdout.
func (s *Server) ServeStdio(stdin io.Reader, stdout io.Writer) {
	transport := NewTransport(stdin, stdout)
	s.ServeTransport(transport)
}
