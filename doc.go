// Package frameprof is a GPU command-level profiling layer.
//
// # Overview
//
// frameprof sits between an application and its graphics driver. For a fixed
// set of recorded commands (draws, dispatches, copies, clears, barriers,
// render pass boundaries) it brackets the command with GPU timestamps,
// validates the readings, converts them to milliseconds on the CPU timeline
// and stores them per application thread and GPU queue.
//
// # Quick Start
//
//	layer := frameprof.NewLayer(
//	    frameprof.WithLogger(slog.Default()),
//	    frameprof.WithFrameCounter(frames),
//	)
//
//	// Around every intercepted command:
//	layer.PreCall(thread, funcid.CmdDraw, cmdBuf)
//	driver.CmdDraw(...)
//	layer.PostCall(thread, entry, funcid.CmdDraw, cmdBuf)
//
//	// Once the command buffer's timestamps have been read back:
//	n, err := layer.ResolveQueueResults(ctx, queue, thread, frameStart, raw)
//
// # Architecture
//
// The layer is organized into:
//   - funcid: command identifiers and the static profiling policy
//   - measure: sample identity, raw clocks, results and validation
//   - calibration: GPU/CPU clock correlation and alignment strategies
//   - store: the per-session result aggregate
//   - halprof: command buffer and queue bindings to the wgpu HAL
//   - summary, export: per-command statistics and trace export
//
// # Failure model
//
// Profiling is observational. PreCall and PostCall never return errors:
// a failed begin or end drops the affected sample and the command runs as
// usual. A calibration that does not complete in time drops the batch it was
// taken for.
//
// # Logging
//
// frameprof is silent by default. Call SetLogger, or pass WithLogger to a
// Layer, to see rejected samples and calibration failures.
package frameprof
