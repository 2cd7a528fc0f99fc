package export

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/gogpu/frameprof/measure"
	"github.com/gogpu/frameprof/store"
)

// Trace Event phases used by ChromeTrace.
const (
	PhaseComplete  = "X"
	PhaseMetadata  = "M"
	PhaseFlowStart = "s"
	PhaseFlowEnd   = "f"
)

// Process ids of the two tracks.
const (
	CPUProcess = 1
	GPUProcess = 2
)

// TraceEvent is one entry of the Chrome Trace Event format.
type TraceEvent struct {
	Name      string         `json:"name"`
	Category  string         `json:"cat,omitempty"`
	Phase     string         `json:"ph"`
	Timestamp float64        `json:"ts"`
	Duration  float64        `json:"dur,omitempty"`
	ProcessID int            `json:"pid"`
	ThreadID  uint64         `json:"tid"`
	ID        uint64         `json:"id,omitempty"`
	Binding   string         `json:"bp,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
}

// TraceFile is the top-level JSON object.
type TraceFile struct {
	TraceEvents     []TraceEvent `json:"traceEvents"`
	DisplayTimeUnit string       `json:"displayTimeUnit,omitempty"`
}

// BuildTrace merges API entries (CPU track, one row per thread) and GPU
// results (GPU track, one row per queue). An entry and the result with the
// same sample id are linked with a flow arrow.
func BuildTrace(snap []store.BucketSnapshot, entries []*measure.APIEntry, tl Timeline) TraceFile {
	var events []TraceEvent
	events = append(events,
		processName(CPUProcess, "CPU"),
		processName(GPUProcess, "GPU"),
	)

	gpu := make(map[uint64]store.Located)
	for _, b := range snap {
		for _, r := range b.Results {
			ts, dur := tl.gpuSpan(r)
			events = append(events, TraceEvent{
				Name:      r.ID.FuncID.String(),
				Category:  "gpu",
				Phase:     PhaseComplete,
				Timestamp: ts,
				Duration:  dur,
				ProcessID: GPUProcess,
				ThreadID:  uint64(b.Queue),
				Args: map[string]any{
					"sample_id": r.ID.SampleID,
					"frame":     r.ID.Frame,
					"thread":    b.Thread,
					"cmd_buf":   fmt.Sprintf("%#x", r.ID.CmdBuf),
				},
			})
			gpu[r.ID.SampleID] = store.Located{Thread: b.Thread, Queue: b.Queue, Result: r}
		}
	}

	for _, e := range entries {
		ts, dur := tl.cpuSpan(e)
		args := map[string]any{"sample_id": e.SampleID}
		if e.Args != "" {
			args["args"] = e.Args
		}
		events = append(events, TraceEvent{
			Name:      e.FuncID.String(),
			Category:  "api",
			Phase:     PhaseComplete,
			Timestamp: ts,
			Duration:  dur,
			ProcessID: CPUProcess,
			ThreadID:  uint64(e.ThreadID),
			Args:      args,
		})
	}

	// Flow arrows from the API call to its GPU execution.
	for _, e := range entries {
		loc, ok := gpu[e.SampleID]
		if !ok {
			continue
		}
		ts, _ := tl.cpuSpan(e)
		gts, _ := tl.gpuSpan(loc.Result)
		events = append(events,
			TraceEvent{
				Name: "submit", Category: "flow", Phase: PhaseFlowStart,
				Timestamp: ts, ProcessID: CPUProcess, ThreadID: uint64(e.ThreadID),
				ID: e.SampleID,
			},
			TraceEvent{
				Name: "submit", Category: "flow", Phase: PhaseFlowEnd,
				Timestamp: gts, ProcessID: GPUProcess, ThreadID: uint64(loc.Queue),
				ID: e.SampleID, Binding: "e",
			},
		)
	}

	slices.SortStableFunc(events[2:], func(a, b TraceEvent) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	})
	return TraceFile{TraceEvents: events, DisplayTimeUnit: "ns"}
}

// ChromeTrace writes BuildTrace's result as JSON to w.
func ChromeTrace(w io.Writer, snap []store.BucketSnapshot, entries []*measure.APIEntry, tl Timeline) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(BuildTrace(snap, entries, tl)); err != nil {
		return fmt.Errorf("export: encode chrome trace: %w", err)
	}
	return nil
}

func processName(pid int, name string) TraceEvent {
	return TraceEvent{
		Name:      "process_name",
		Phase:     PhaseMetadata,
		ProcessID: pid,
		Args:      map[string]any{"name": name},
	}
}
