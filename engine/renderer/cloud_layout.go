package renderer

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-sky/engine/octree"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
)

// Binding slots of the cloud bind group, as declared in octree.GPUCloudNodeSource.
const (
	cloudNodesBinding  = "cloud_nodes"
	cloudParamsBinding = "cloud_params"
	cloudGroup         = 0
)

// cloudShader is the reflection of the cloud WGSL, parsed once.
var cloudShader = sync.OnceValues(func() (*shader.Module, error) {
	return shader.Parse(octree.GPUCloudNodeSource, wgpu.ShaderStageFragment)
})

// CloudBindGroupLayout returns the descriptor of the cloud bind group, reflected from the cloud WGSL.
//
// Parameters:
//   - label: the descriptor label
//
// Returns:
//   - wgpu.BindGroupLayoutDescriptor: the node storage binding and the params uniform binding
//   - error: an error if the cloud WGSL does not declare the group
func CloudBindGroupLayout(label string) (wgpu.BindGroupLayoutDescriptor, error) {
	mod, err := cloudShader()
	if err != nil {
		return wgpu.BindGroupLayoutDescriptor{}, errors.Wrap(err, "reflect cloud shader")
	}
	desc, ok := mod.BindGroupLayout(cloudGroup, label)
	if !ok {
		return wgpu.BindGroupLayoutDescriptor{}, errors.Errorf("cloud shader declares no group %d", cloudGroup)
	}
	return desc, nil
}

// checkCloudBinding validates buffers against the reflected cloud bindings: the node buffer must hold a whole
// number of records, at least one, and the params buffer must cover the uniform struct.
func checkCloudBinding(label string, nodes, params Buffer) error {
	mod, err := cloudShader()
	if err != nil {
		return errors.Wrap(err, "reflect cloud shader")
	}
	nb, ok := mod.Binding(cloudNodesBinding)
	if !ok {
		return errors.Errorf("cloud shader declares no %s binding", cloudNodesBinding)
	}
	pb, ok := mod.Binding(cloudParamsBinding)
	if !ok {
		return errors.Errorf("cloud shader declares no %s binding", cloudParamsBinding)
	}

	stride := nb.Entry.Buffer.MinBindingSize
	if nodes.Size() < stride || nodes.Size()%stride != 0 {
		return errors.Wrapf(ErrOutOfRange, "%s: node buffer of %d bytes is not a multiple of the %d byte record",
			label, nodes.Size(), stride)
	}
	if nodes.Usage()&BufferUsageStorage == 0 {
		return errors.Errorf("%s: node buffer %q lacks storage usage", label, nodes.Label())
	}
	if params.Size() < pb.Entry.Buffer.MinBindingSize {
		return errors.Wrapf(ErrOutOfRange, "%s: params buffer of %d bytes is smaller than %d",
			label, params.Size(), pb.Entry.Buffer.MinBindingSize)
	}
	if params.Usage()&BufferUsageUniform == 0 {
		return errors.Errorf("%s: params buffer %q lacks uniform usage", label, params.Label())
	}
	return nil
}
