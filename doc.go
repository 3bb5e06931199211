// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package flakehunt locates the first nondeterministic action in a GPU
// frame capture.
//
// Given a replay controller positioned over a capture, flakehunt replays
// every draw and dispatch action twice under identical captured inputs,
// fingerprints every GPU-visible output resource after each replay, and
// reports the first action whose two fingerprints diverge. A divergence
// signals true GPU or driver nondeterminism at that action: an
// uninitialized read, a racing compute shader, or a flaky driver.
//
// The package is deliberately small: a Fingerprinter that digests the
// bound outputs of one action, and a Scanner that drives the
// double-fingerprint comparison across the frame. Opening captures and
// talking to replay hosts is the replay package's territory; displaying
// progress is the progress package's.
//
// Basic usage:
//
//	release, err := replay.Initialize()
//	if err != nil { ... }
//	defer release()
//
//	ctrl, err := replay.Open("local", replay.OpenOptions{Path: "frame.fhc"})
//	if err != nil { ... }
//	defer ctrl.Close()
//
//	verdict, err := flakehunt.NewScanner(ctrl, nil).Run()
package flakehunt
