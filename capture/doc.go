// Package capture reads and writes .fhc frame-capture containers.
//
// A capture is a zip archive with three kinds of entries:
//
//   - manifest.json: the frame description: resource table, pipeline
//     descriptions, and the capture-ordered action list.
//   - shaders/<name>.wgsl: WGSL sources referenced by pipelines.
//   - data/<name>.bin: raw initial contents for buffers and textures.
//
// Load validates the container fully before returning: unknown versions,
// dangling references, size mismatches, and shaders that fail to compile
// are all load-time errors, so a scan never fails halfway through a frame
// because of a malformed capture.
//
// The format deliberately records initial contents for every resource an
// action can read or write. Replay re-uploads those contents before each
// re-execution, which is what makes "replay the same action twice under
// identical inputs" meaningful.
package capture
