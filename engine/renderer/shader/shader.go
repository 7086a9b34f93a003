// Package shader reflects WGSL source: struct memory layouts and buffer bind group layouts, so host-side record
// types and GPU resources can be derived from, and checked against, the shader that consumes them.
package shader

import (
	"sort"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
)

var (
	// ErrUnresolvedType is returned when a struct field or binding uses a type with no known layout.
	ErrUnresolvedType = errors.New("unresolved wgsl type")
	// ErrUnsupportedResource is returned for bindings that are not uniform or storage buffers.
	ErrUnsupportedResource = errors.New("unsupported wgsl resource")
)

// FieldLayout is the placement of one struct member.
type FieldLayout struct {
	Name   string
	Type   string
	Offset uint64
	Size   uint64
}

// StructLayout is the host-shareable layout of a WGSL struct.
type StructLayout struct {
	Name   string
	Size   uint64
	Align  uint64
	Fields []FieldLayout
}

// Field looks up a member by name.
func (s StructLayout) Field(name string) (FieldLayout, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldLayout{}, false
}

// Binding is one @group/@binding buffer declaration.
type Binding struct {
	Group int
	Name  string
	Type  string
	Entry wgpu.BindGroupLayoutEntry
}

// Module is the reflection of a WGSL source.
type Module struct {
	structs  map[string]StructLayout
	bindings []Binding
}

// Parse reflects source. Every struct and every buffer binding must resolve.
//
// Parameters:
//   - source: the WGSL source
//   - visibility: the shader stages that see the bindings
//
// Returns:
//   - *Module: the reflection
//   - error: an error wrapping ErrUnresolvedType or ErrUnsupportedResource
func Parse(source string, visibility wgpu.ShaderStage) (*Module, error) {
	cleaned := stripComments(source)

	structs := parseStructBlocks(cleaned)
	layouts, unresolved := computeStructLayouts(structs)
	if len(unresolved) > 0 {
		return nil, errors.Wrapf(ErrUnresolvedType, "struct %s", unresolved[0])
	}

	decls := parseBindingDecls(cleaned)
	bindings := make([]Binding, 0, len(decls))
	for _, d := range decls {
		entry, err := classifyBuffer(d, visibility)
		if err != nil {
			return nil, err
		}
		layout, ok := resolveTypeLayout(d.typeName, layouts)
		if !ok {
			return nil, errors.Wrapf(ErrUnresolvedType, "binding %s: %s", d.name, d.typeName)
		}
		entry.Buffer.MinBindingSize = layout.size
		bindings = append(bindings, Binding{Group: d.group, Name: d.name, Type: d.typeName, Entry: entry})
	}
	sort.Slice(bindings, func(i, j int) bool {
		if bindings[i].Group != bindings[j].Group {
			return bindings[i].Group < bindings[j].Group
		}
		return bindings[i].Entry.Binding < bindings[j].Entry.Binding
	})

	return &Module{structs: layouts, bindings: bindings}, nil
}

// Struct returns the layout of the named struct.
func (m *Module) Struct(name string) (StructLayout, bool) {
	s, ok := m.structs[name]
	return s, ok
}

// Bindings returns every binding ordered by group, then binding index.
func (m *Module) Bindings() []Binding {
	return m.bindings
}

// Binding looks up a binding by variable name.
func (m *Module) Binding(name string) (Binding, bool) {
	for _, b := range m.bindings {
		if b.Name == name {
			return b, true
		}
	}
	return Binding{}, false
}

// BindGroupLayout builds the layout descriptor of one group.
//
// Parameters:
//   - group: the @group index
//   - label: the descriptor label
//
// Returns:
//   - wgpu.BindGroupLayoutDescriptor: the entries of the group ordered by binding index
//   - bool: false if the group declares nothing
func (m *Module) BindGroupLayout(group int, label string) (wgpu.BindGroupLayoutDescriptor, bool) {
	var entries []wgpu.BindGroupLayoutEntry
	for _, b := range m.bindings {
		if b.Group == group {
			entries = append(entries, b.Entry)
		}
	}
	if len(entries) == 0 {
		return wgpu.BindGroupLayoutDescriptor{}, false
	}
	return wgpu.BindGroupLayoutDescriptor{Label: label, Entries: entries}, true
}
