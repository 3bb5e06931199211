// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/gogpu/flakehunt"
	"github.com/gogpu/flakehunt/replay"
)

// OpenFunc opens an uploaded capture file for a session. Implementations
// usually delegate to the local replay driver.
type OpenFunc func(path string, progress func(float64)) (replay.Controller, error)

// Server accepts replay sessions and serves each one from a controller
// opened through its OpenFunc.
type Server struct {
	open OpenFunc
}

func NewServer(open OpenFunc) *Server {
	return &Server{open: open}
}

// Serve accepts connections until the listener is closed or the context
// is canceled. Each connection gets its own session.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("remote: accept: %w", err)
		}
		flakehunt.Logger().Info("remote: session started", "peer", conn.RemoteAddr().String())
		s.ServeConn(ctx, conn)
	}
}

// ServeConn runs one replay session over an arbitrary transport. It
// returns immediately; the session ends when the peer disconnects.
func (s *Server) ServeConn(ctx context.Context, rwc io.ReadWriteCloser) *jsonrpc2.Conn {
	sess := &session{open: s.open}
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(sess.handle))

	go func() {
		<-conn.DisconnectNotify()
		sess.shutdown()
	}()
	return conn
}

// session is the per-connection state: the capture being uploaded and,
// after replay.open, the controller serving it. The jsonrpc2 handler is
// invoked serially per connection, but shutdown can race with a request,
// hence the mutex.
type session struct {
	mu   sync.Mutex
	open OpenFunc

	upload *os.File
	ctrl   replay.Controller
}

func (s *session) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Method {
	case methodUpload:
		var params uploadParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		return nil, s.appendChunk(params.Data)

	case methodOpen:
		return s.openCapture(ctx, conn)

	case methodActions:
		if s.ctrl == nil {
			return nil, errNotOpen()
		}
		return &openResult{Actions: toWireActions(s.ctrl.Actions())}, nil

	case methodSetFrameEvent:
		if s.ctrl == nil {
			return nil, errNotOpen()
		}
		var params eventParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		return nil, s.ctrl.SetFrameEvent(params.EventID)

	case methodColorTargets:
		if s.ctrl == nil {
			return nil, errNotOpen()
		}
		targets := s.ctrl.ColorTargets()
		out := make([]wireBound, len(targets))
		for i, t := range targets {
			out[i] = toWireBound(t)
		}
		return &boundsResult{Bound: out}, nil

	case methodDepthTarget:
		if s.ctrl == nil {
			return nil, errNotOpen()
		}
		if target, ok := s.ctrl.DepthTarget(); ok {
			w := toWireBound(target)
			return &depthResult{Bound: &w}, nil
		}
		return &depthResult{}, nil

	case methodRWResources:
		if s.ctrl == nil {
			return nil, errNotOpen()
		}
		var params stageParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		bound := s.ctrl.ReadWriteResources(replay.ShaderStage(params.Stage))
		out := make([]wireBound, len(bound))
		for i, b := range bound {
			out[i] = toWireBound(b)
		}
		return &boundsResult{Bound: out}, nil

	case methodTextureData:
		if s.ctrl == nil {
			return nil, errNotOpen()
		}
		var params textureDataParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		data, err := s.ctrl.TextureData(replay.ResourceID(params.Resource), params.Mip, params.Slice)
		if err != nil {
			return nil, err
		}
		return &dataResult{Data: data}, nil

	case methodBufferData:
		if s.ctrl == nil {
			return nil, errNotOpen()
		}
		var params bufferDataParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		data, err := s.ctrl.BufferData(replay.ResourceID(params.Resource), params.Offset, params.Length)
		if err != nil {
			return nil, err
		}
		return &dataResult{Data: data}, nil

	case methodClose:
		s.close()
		return nil, nil

	default:
		return nil, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: fmt.Sprintf("unknown method %q", req.Method),
		}
	}
}

func (s *session) appendChunk(data []byte) error {
	if s.ctrl != nil {
		return fmt.Errorf("remote: capture already open")
	}
	if s.upload == nil {
		f, err := os.CreateTemp("", "flakehunt-upload-*.fhc")
		if err != nil {
			return fmt.Errorf("remote: create upload file: %w", err)
		}
		s.upload = f
	}
	if _, err := s.upload.Write(data); err != nil {
		return fmt.Errorf("remote: write upload: %w", err)
	}
	return nil
}

func (s *session) openCapture(ctx context.Context, conn *jsonrpc2.Conn) (*openResult, error) {
	if s.ctrl != nil {
		return nil, fmt.Errorf("remote: capture already open")
	}
	if s.upload == nil {
		return nil, fmt.Errorf("remote: no capture uploaded")
	}
	if err := s.upload.Close(); err != nil {
		return nil, fmt.Errorf("remote: finish upload: %w", err)
	}

	path := s.upload.Name()
	ctrl, err := s.open(path, func(fraction float64) {
		_ = conn.Notify(ctx, notifyProgress, &progressParams{Fraction: fraction})
	})
	if err != nil {
		return nil, err
	}
	s.ctrl = ctrl

	flakehunt.Logger().Debug("remote: capture opened", "path", filepath.Base(path))
	return &openResult{Actions: toWireActions(ctrl.Actions())}, nil
}

func (s *session) close() {
	if s.ctrl != nil {
		if err := s.ctrl.Close(); err != nil {
			flakehunt.Logger().Warn("remote: close controller", "error", err)
		}
		s.ctrl = nil
	}
	if s.upload != nil {
		s.upload.Close()
		os.Remove(s.upload.Name())
		s.upload = nil
	}
}

func (s *session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.close()
}

func toWireActions(actions []replay.Action) []wireAction {
	out := make([]wireAction, len(actions))
	for i, a := range actions {
		out[i] = wireAction{EventID: a.EventID, Flags: uint32(a.Flags), Name: a.Name}
	}
	return out
}

func unmarshalParams(req *jsonrpc2.Request, v any) error {
	if req.Params == nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

func errNotOpen() error {
	return fmt.Errorf("remote: no capture open")
}
