// Package replay defines the boundary between the discrepancy-detection
// core and a replay implementation.
//
// A Controller is a stateful cursor over one opened capture: it enumerates
// the frame's actions, re-positions replay at a given event, exposes the
// pipeline bindings active at that event, and reads back raw resource
// contents. Exactly one owner drives a Controller at a time; positioning
// and the readbacks that follow it form one unit of work and must never be
// interleaved with another positioning request.
//
// Implementations live in subpackages: wgpureplay executes captures on a
// local wgpu-hal device, remote drives a replay daemon over JSON-RPC.
// They register themselves with Register, following the database/sql
// driver pattern:
//
//	import _ "github.com/gogpu/flakehunt/replay/wgpureplay"
//
//	release, err := replay.Initialize()
//	if err != nil { ... }
//	defer release()
//
//	ctrl, err := replay.Open("local", replay.OpenOptions{Path: "frame.fhc"})
package replay
