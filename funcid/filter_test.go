package funcid

import "testing"

func TestDefaultFilterPolicy(t *testing.T) {
	f := DefaultFilter()

	profiled := []FuncID{
		CmdDraw, CmdDrawIndexed, CmdDispatch, CmdCopyBuffer, CmdBlitImage,
		CmdPipelineBarrier, CmdBeginRenderPass, CmdEndRenderPass, CmdExecuteCommands,
		CmdWaitEvents, CmdPushConstants, CmdResetQueryPool,
	}
	for _, id := range profiled {
		if !f.ShouldProfile(id) {
			t.Errorf("ShouldProfile(%v) = false, want true", id)
		}
	}

	skipped := []FuncID{
		CmdBindPipeline, CmdSetViewport, CmdSetScissor, CmdBindDescriptorSets,
		CmdBindIndexBuffer, CmdBindVertexBuffers, CmdSetEvent, CmdBeginQuery,
		CmdWriteTimestamp, Unknown, Count, FuncID(4096),
	}
	for _, id := range skipped {
		if f.ShouldProfile(id) {
			t.Errorf("ShouldProfile(%v) = true, want false", id)
		}
	}
}

func TestFilterPurity(t *testing.T) {
	f := NewFilter()
	first := make(map[FuncID]bool)
	for _, id := range All() {
		first[id] = f.ShouldProfile(id)
	}
	for range 3 {
		for _, id := range All() {
			if got := f.ShouldProfile(id); got != first[id] {
				t.Fatalf("ShouldProfile(%v) changed from %v to %v", id, first[id], got)
			}
		}
	}
}

func TestFilterOverride(t *testing.T) {
	f := NewFilter(
		WithOverride(CmdBindPipeline, true),
		WithOverride(CmdDraw, false),
		WithOverride(Unknown, true),
	)
	if !f.ShouldProfile(CmdBindPipeline) {
		t.Error("override did not enable CmdBindPipeline")
	}
	if f.ShouldProfile(CmdDraw) {
		t.Error("override did not disable CmdDraw")
	}
	if f.ShouldProfile(Unknown) {
		t.Error("Unknown must never be profiled")
	}

	// Overrides on one filter never leak into the shared default.
	if DefaultFilter().ShouldProfile(CmdBindPipeline) {
		t.Error("DefaultFilter was modified by another filter's options")
	}
}

func TestNilFilter(t *testing.T) {
	var f *Filter
	if f.ShouldProfile(CmdDraw) {
		t.Error("nil filter should profile nothing")
	}
}

func TestProfiled(t *testing.T) {
	ids := NewFilter().Profiled()
	if len(ids) != len(defaultTable) {
		t.Errorf("len(Profiled()) = %d, want %d", len(ids), len(defaultTable))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("Profiled() not in declaration order at %d", i)
		}
	}
}
