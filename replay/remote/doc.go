// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package remote replays captures on another machine over JSON-RPC 2.0.
//
// The package registers itself as the "remote" replay driver. A client
// uploads the capture file to a flakehunt daemon in chunks, asks the
// daemon to open it with its local GPU, and then proxies every
// replay.Controller call over the connection. The server side wraps any
// replay.Controller, so a scan against remote hardware runs the exact
// same engine as a local scan.
package remote
