// Package funcid identifies the interceptable command-recording calls and
// decides which of them are timed on the GPU.
//
// The identifiers follow the Vulkan vkCmd* entry points. A FuncID is what the
// interception layer passes to the profiler on every PreCall/PostCall; the
// Filter is the static policy that maps each identifier to a "should profile"
// decision.
package funcid

// FuncID identifies an intercepted command-recording call.
type FuncID uint16

const (
	Unknown FuncID = iota

	// State binding
	CmdBindPipeline
	CmdSetViewport
	CmdSetScissor
	CmdSetLineWidth
	CmdSetDepthBias
	CmdSetBlendConstants
	CmdSetDepthBounds
	CmdSetStencilCompareMask
	CmdSetStencilWriteMask
	CmdSetStencilReference
	CmdBindDescriptorSets
	CmdBindIndexBuffer
	CmdBindVertexBuffers

	// Work
	CmdDraw
	CmdDrawIndexed
	CmdDrawIndirect
	CmdDrawIndexedIndirect
	CmdDispatch
	CmdDispatchIndirect
	CmdCopyBuffer
	CmdCopyImage
	CmdBlitImage
	CmdCopyBufferToImage
	CmdCopyImageToBuffer
	CmdUpdateBuffer
	CmdFillBuffer
	CmdClearColorImage
	CmdClearDepthStencilImage
	CmdClearAttachments
	CmdResolveImage
	CmdPipelineBarrier

	// Synchronization and queries
	CmdWaitEvents
	CmdSetEvent
	CmdResetEvent
	CmdBeginQuery
	CmdEndQuery
	CmdWriteTimestamp
	CmdPushConstants
	CmdResetQueryPool
	CmdCopyQueryPoolResults

	// Render pass boundaries
	CmdBeginRenderPass
	CmdNextSubpass
	CmdEndRenderPass

	CmdExecuteCommands

	// Count is the number of defined identifiers. Not a valid FuncID.
	Count
)

// funcNames maps FuncID values to the API entry point name.
var funcNames = [...]string{
	Unknown:                   "Unknown",
	CmdBindPipeline:           "vkCmdBindPipeline",
	CmdSetViewport:            "vkCmdSetViewport",
	CmdSetScissor:             "vkCmdSetScissor",
	CmdSetLineWidth:           "vkCmdSetLineWidth",
	CmdSetDepthBias:           "vkCmdSetDepthBias",
	CmdSetBlendConstants:      "vkCmdSetBlendConstants",
	CmdSetDepthBounds:         "vkCmdSetDepthBounds",
	CmdSetStencilCompareMask:  "vkCmdSetStencilCompareMask",
	CmdSetStencilWriteMask:    "vkCmdSetStencilWriteMask",
	CmdSetStencilReference:    "vkCmdSetStencilReference",
	CmdBindDescriptorSets:     "vkCmdBindDescriptorSets",
	CmdBindIndexBuffer:        "vkCmdBindIndexBuffer",
	CmdBindVertexBuffers:      "vkCmdBindVertexBuffers",
	CmdDraw:                   "vkCmdDraw",
	CmdDrawIndexed:            "vkCmdDrawIndexed",
	CmdDrawIndirect:           "vkCmdDrawIndirect",
	CmdDrawIndexedIndirect:    "vkCmdDrawIndexedIndirect",
	CmdDispatch:               "vkCmdDispatch",
	CmdDispatchIndirect:       "vkCmdDispatchIndirect",
	CmdCopyBuffer:             "vkCmdCopyBuffer",
	CmdCopyImage:              "vkCmdCopyImage",
	CmdBlitImage:              "vkCmdBlitImage",
	CmdCopyBufferToImage:      "vkCmdCopyBufferToImage",
	CmdCopyImageToBuffer:      "vkCmdCopyImageToBuffer",
	CmdUpdateBuffer:           "vkCmdUpdateBuffer",
	CmdFillBuffer:             "vkCmdFillBuffer",
	CmdClearColorImage:        "vkCmdClearColorImage",
	CmdClearDepthStencilImage: "vkCmdClearDepthStencilImage",
	CmdClearAttachments:       "vkCmdClearAttachments",
	CmdResolveImage:           "vkCmdResolveImage",
	CmdPipelineBarrier:        "vkCmdPipelineBarrier",
	CmdWaitEvents:             "vkCmdWaitEvents",
	CmdSetEvent:               "vkCmdSetEvent",
	CmdResetEvent:             "vkCmdResetEvent",
	CmdBeginQuery:             "vkCmdBeginQuery",
	CmdEndQuery:               "vkCmdEndQuery",
	CmdWriteTimestamp:         "vkCmdWriteTimestamp",
	CmdPushConstants:          "vkCmdPushConstants",
	CmdResetQueryPool:         "vkCmdResetQueryPool",
	CmdCopyQueryPoolResults:   "vkCmdCopyQueryPoolResults",
	CmdBeginRenderPass:        "vkCmdBeginRenderPass",
	CmdNextSubpass:            "vkCmdNextSubpass",
	CmdEndRenderPass:          "vkCmdEndRenderPass",
	CmdExecuteCommands:        "vkCmdExecuteCommands",
}

// String returns the API entry point name, e.g. "vkCmdDraw".
func (f FuncID) String() string {
	if f < Count {
		return funcNames[f]
	}
	return "Unknown"
}

// Valid reports whether f is a defined identifier other than Unknown.
func (f FuncID) Valid() bool {
	return f > Unknown && f < Count
}

// Parse returns the FuncID for an entry point name.
// Both "vkCmdDraw" and "CmdDraw" are accepted.
func Parse(name string) (FuncID, bool) {
	for i := FuncID(1); i < Count; i++ {
		n := funcNames[i]
		if n == name || n[2:] == name {
			return i, true
		}
	}
	return Unknown, false
}

// All returns every defined identifier in declaration order, Unknown excluded.
func All() []FuncID {
	ids := make([]FuncID, 0, Count-1)
	for i := FuncID(1); i < Count; i++ {
		ids = append(ids, i)
	}
	return ids
}
