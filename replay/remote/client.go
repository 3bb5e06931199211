// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/gogpu/flakehunt"
	"github.com/gogpu/flakehunt/replay"
)

// DriverName is the name this package registers with the replay registry.
const DriverName = "remote"

func init() {
	replay.Register(DriverName, func(opts replay.OpenOptions) (replay.Controller, error) {
		return Dial(context.Background(), opts)
	})
}

// Client proxies replay.Controller calls to a flakehunt daemon. Like any
// Controller it is driven from one goroutine at a time.
type Client struct {
	conn     *jsonrpc2.Conn
	actions  []replay.Action
	progress func(float64)

	// err remembers the first transport failure. Once set, every further
	// call fails with it, so a dropped connection aborts the scan instead
	// of masquerading as empty binding results.
	err error
}

var _ replay.Controller = (*Client)(nil)

// Dial connects to the daemon named by opts.Host, uploads the capture at
// opts.Path, and opens it remotely. A host without a port gets
// DefaultPort. Connection and open failures wrap flakehunt.ErrSetup.
func Dial(ctx context.Context, opts replay.OpenOptions) (*Client, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("%w: remote: no host", flakehunt.ErrSetup)
	}
	host := opts.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, DefaultPort)
	}

	netConn, err := net.Dial("tcp", host)
	if err != nil {
		return nil, fmt.Errorf("%w: remote: dial %s: %w", flakehunt.ErrSetup, host, err)
	}
	return NewClient(ctx, netConn, opts)
}

// NewClient runs the session protocol over an established transport:
// upload the capture, open it, cache the action timeline.
func NewClient(ctx context.Context, rwc io.ReadWriteCloser, opts replay.OpenOptions) (*Client, error) {
	c := &Client{progress: opts.OpenProgress}
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	c.conn = jsonrpc2.NewConn(ctx, stream, c)

	if err := c.uploadCapture(ctx, opts.Path); err != nil {
		c.conn.Close()
		return nil, fmt.Errorf("%w: %w", flakehunt.ErrSetup, err)
	}

	var opened openResult
	if err := c.conn.Call(ctx, methodOpen, nil, &opened); err != nil {
		c.conn.Close()
		return nil, fmt.Errorf("%w: remote: open capture: %w", flakehunt.ErrSetup, err)
	}
	c.actions = make([]replay.Action, len(opened.Actions))
	for i, a := range opened.Actions {
		c.actions[i] = replay.Action{
			EventID: a.EventID,
			Flags:   replay.ActionFlags(a.Flags),
			Name:    a.Name,
		}
	}
	c.report(1)

	flakehunt.Logger().Debug("remote: capture opened", "actions", len(c.actions))
	return c, nil
}

// Handle receives server notifications. Open progress from the daemon
// maps onto the upper half of the client's progress range; the upload
// itself covers the lower half.
func (c *Client) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if req.Method != notifyProgress || !req.Notif || req.Params == nil {
		return
	}
	var params progressParams
	if err := json.Unmarshal(*req.Params, &params); err != nil {
		return
	}
	c.report(0.5 + params.Fraction/2)
}

func (c *Client) report(fraction float64) {
	if c.progress != nil {
		c.progress(fraction)
	}
}

func (c *Client) uploadCapture(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("remote: open capture: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("remote: stat capture: %w", err)
	}

	var sent int64
	chunk := make([]byte, uploadChunkSize)
	for {
		n, err := f.Read(chunk)
		if n > 0 {
			params := &uploadParams{Data: chunk[:n]}
			if err := c.conn.Call(ctx, methodUpload, params, nil); err != nil {
				return fmt.Errorf("remote: upload: %w", err)
			}
			sent += int64(n)
			if info.Size() > 0 {
				c.report(0.5 * float64(sent) / float64(info.Size()))
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("remote: read capture: %w", err)
		}
	}
}

// call performs one RPC, remembering the first transport failure. The
// binding queries cannot return errors themselves; the sticky error makes
// the next SetFrameEvent or readback fail instead, so the scan aborts
// rather than finishing on silently empty results. A *jsonrpc2.Error is
// an answer from a live connection and does not poison the session.
func (c *Client) call(method string, params, result any) error {
	if c.err != nil {
		return c.err
	}
	err := c.conn.Call(context.Background(), method, params, result)
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("remote: %s: %w", method, err)
	var rpcErr *jsonrpc2.Error
	if !errors.As(err, &rpcErr) {
		c.err = wrapped
	}
	return wrapped
}

// Actions returns the timeline fetched when the capture was opened.
func (c *Client) Actions() []replay.Action {
	out := make([]replay.Action, len(c.actions))
	copy(out, c.actions)
	return out
}

func (c *Client) SetFrameEvent(eventID uint32) error {
	return c.call(methodSetFrameEvent, &eventParams{EventID: eventID}, nil)
}

func (c *Client) ColorTargets() []replay.BoundResource {
	var res boundsResult
	if err := c.call(methodColorTargets, nil, &res); err != nil {
		flakehunt.Logger().Warn("remote: colorTargets", "error", err)
		return nil
	}
	out := make([]replay.BoundResource, len(res.Bound))
	for i, b := range res.Bound {
		out[i] = fromWireBound(b)
	}
	return out
}

func (c *Client) DepthTarget() (replay.BoundResource, bool) {
	var res depthResult
	if err := c.call(methodDepthTarget, nil, &res); err != nil {
		flakehunt.Logger().Warn("remote: depthTarget", "error", err)
		return replay.BoundResource{}, false
	}
	if res.Bound == nil {
		return replay.BoundResource{}, false
	}
	return fromWireBound(*res.Bound), true
}

func (c *Client) ReadWriteResources(stage replay.ShaderStage) []replay.BoundResource {
	var res boundsResult
	if err := c.call(methodRWResources, &stageParams{Stage: uint32(stage)}, &res); err != nil {
		flakehunt.Logger().Warn("remote: rwResources", "error", err)
		return nil
	}
	out := make([]replay.BoundResource, len(res.Bound))
	for i, b := range res.Bound {
		out[i] = fromWireBound(b)
	}
	return out
}

func (c *Client) TextureData(id replay.ResourceID, mip, slice uint32) ([]byte, error) {
	var res dataResult
	params := &textureDataParams{Resource: uint64(id), Mip: mip, Slice: slice}
	if err := c.call(methodTextureData, params, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (c *Client) BufferData(id replay.ResourceID, offset, length uint64) ([]byte, error) {
	var res dataResult
	params := &bufferDataParams{Resource: uint64(id), Offset: offset, Length: length}
	if err := c.call(methodBufferData, params, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

// Close ends the remote session and drops the connection.
func (c *Client) Close() error {
	callErr := c.call(methodClose, nil, nil)
	if err := c.conn.Close(); err != nil && callErr == nil {
		callErr = err
	}
	return callErr
}
