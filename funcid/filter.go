package funcid

import "sync"

// Filter is the static profiling policy: for each FuncID it says whether the
// call is timed on the GPU. A Filter is immutable once NewFilter returns and
// is safe for concurrent use.
//
// Draw, dispatch, copy, clear, barrier and render pass boundary commands are
// profiled. Pure state-binding commands are not: their cost is not
// observable at GPU timestamp granularity.
type Filter struct {
	table [Count]bool
}

// FilterOption adjusts the table while a Filter is being constructed.
type FilterOption func(*[Count]bool)

// WithOverride forces the decision for one FuncID.
func WithOverride(id FuncID, profile bool) FilterOption {
	return func(t *[Count]bool) {
		if id.Valid() {
			t[id] = profile
		}
	}
}

// defaultTable lists the profiled commands. Everything absent is false.
var defaultTable = map[FuncID]bool{
	CmdDraw:                   true,
	CmdDrawIndexed:            true,
	CmdDrawIndirect:           true,
	CmdDrawIndexedIndirect:    true,
	CmdDispatch:               true,
	CmdDispatchIndirect:       true,
	CmdCopyBuffer:             true,
	CmdCopyImage:              true,
	CmdBlitImage:              true,
	CmdCopyBufferToImage:      true,
	CmdCopyImageToBuffer:      true,
	CmdUpdateBuffer:           true,
	CmdFillBuffer:             true,
	CmdClearColorImage:        true,
	CmdClearDepthStencilImage: true,
	CmdClearAttachments:       true,
	CmdResolveImage:           true,
	CmdPipelineBarrier:        true,
	CmdWaitEvents:             true,
	CmdPushConstants:          true,
	CmdResetQueryPool:         true,
	CmdCopyQueryPoolResults:   true,
	CmdBeginRenderPass:        true,
	CmdNextSubpass:            true,
	CmdEndRenderPass:          true,
	CmdExecuteCommands:        true,
}

// NewFilter builds a Filter from the default policy and applies opts in order.
func NewFilter(opts ...FilterOption) *Filter {
	f := &Filter{}
	for id, profile := range defaultTable {
		f.table[id] = profile
	}
	for _, opt := range opts {
		opt(&f.table)
	}
	return f
}

var (
	defaultFilterOnce sync.Once
	defaultFilter     *Filter
)

// DefaultFilter returns the shared Filter built from the default policy.
func DefaultFilter() *Filter {
	defaultFilterOnce.Do(func() {
		defaultFilter = NewFilter()
	})
	return defaultFilter
}

// ShouldProfile reports whether calls to id are timed.
// Unknown and out-of-range identifiers are never profiled.
func (f *Filter) ShouldProfile(id FuncID) bool {
	if f == nil || id >= Count {
		return false
	}
	return f.table[id]
}

// Profiled returns the identifiers this filter times, in declaration order.
func (f *Filter) Profiled() []FuncID {
	var ids []FuncID
	for _, id := range All() {
		if f.ShouldProfile(id) {
			ids = append(ids, id)
		}
	}
	return ids
}
