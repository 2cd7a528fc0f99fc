package halprof

import (
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// calibrationWGSL is dispatched once per calibration. It does no work; the
// pass exists only to carry an end-of-pass timestamp write.
const calibrationWGSL = `@compute @workgroup_size(1)
fn main() {}
`

// compileWGSL compiles WGSL source to SPIR-V words.
func compileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("halprof: compile shader: %w", err)
	}

	// SPIR-V is a stream of little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// kernel is the compute pipeline used by calibration submissions.
type kernel struct {
	device   hal.Device
	module   hal.ShaderModule
	layout   hal.PipelineLayout
	pipeline hal.ComputePipeline
}

func newKernel(device hal.Device, label string) (*kernel, error) {
	words, err := compileWGSL(calibrationWGSL)
	if err != nil {
		return nil, err
	}

	k := &kernel{device: device}
	k.module, err = device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label + "_shader",
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return nil, fmt.Errorf("halprof: create shader module: %w", err)
	}

	k.layout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: label + "_layout",
	})
	if err != nil {
		k.destroy()
		return nil, fmt.Errorf("halprof: create pipeline layout: %w", err)
	}

	k.pipeline, err = device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  label + "_pipeline",
		Layout: k.layout,
		Compute: hal.ComputeState{
			Module:     k.module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		k.destroy()
		return nil, fmt.Errorf("halprof: create compute pipeline: %w", err)
	}
	return k, nil
}

// destroy releases the pipeline objects, pipeline first.
func (k *kernel) destroy() {
	if k.pipeline != nil {
		k.device.DestroyComputePipeline(k.pipeline)
		k.pipeline = nil
	}
	if k.layout != nil {
		k.device.DestroyPipelineLayout(k.layout)
		k.layout = nil
	}
	if k.module != nil {
		k.device.DestroyShaderModule(k.module)
		k.module = nil
	}
}
