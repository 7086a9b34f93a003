package shader

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
)

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// fieldRegex matches a struct member: optional attributes, name, colon, type.
	// The type capture is greedy to keep parameterized types like array<T, N> whole.
	fieldRegex = regexp.MustCompile(`(?:@\w+(?:\([^)]*\))?\s*)*(\w+)\s*:\s*(.+)`)

	// bindingDeclRegex captures group, binding, address space, variable name and type from declarations like
	// @group(0) @binding(1) var<uniform> cloud_params: CloudParams;
	bindingDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// parsedField is a struct member as written in the source.
type parsedField struct {
	name     string
	typeName string
}

// parsedStruct is a struct block as written in the source.
type parsedStruct struct {
	name   string
	fields []parsedField
}

// bindingDecl is a @group/@binding declaration as written in the source.
type bindingDecl struct {
	group        int
	binding      uint32
	addressSpace string
	name         string
	typeName     string
}

// parseStructBlocks finds every struct block in comment-free source.
func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))
	for _, match := range matches {
		structs = append(structs, parsedStruct{name: match[1], fields: parseStructFields(match[2])})
	}
	return structs
}

// parseStructFields splits a struct body into members.
func parseStructFields(body string) []parsedField {
	parts := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fm := fieldRegex.FindStringSubmatch(part)
		if fm == nil {
			continue
		}
		fields = append(fields, parsedField{name: fm[1], typeName: strings.TrimSpace(fm[2])})
	}
	return fields
}

// parseBindingDecls finds every resource declaration in comment-free source.
func parseBindingDecls(source string) []bindingDecl {
	matches := bindingDeclRegex.FindAllStringSubmatch(source, -1)
	decls := make([]bindingDecl, 0, len(matches))
	for _, match := range matches {
		group, _ := strconv.Atoi(match[1])
		binding, _ := strconv.ParseUint(match[2], 10, 32)
		decls = append(decls, bindingDecl{
			group:        group,
			binding:      uint32(binding),
			addressSpace: strings.ReplaceAll(strings.TrimSpace(match[3]), " ", ""),
			name:         match[4],
			typeName:     strings.TrimSpace(match[5]),
		})
	}
	return decls
}

// classifyBuffer maps the address space of a declaration to a buffer binding type.
func classifyBuffer(d bindingDecl, visibility wgpu.ShaderStage) (wgpu.BindGroupLayoutEntry, error) {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    d.binding,
		Visibility: visibility,
	}
	switch d.addressSpace {
	case "uniform":
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
	case "storage", "storage,read":
		entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
	case "storage,read_write":
		entry.Buffer.Type = wgpu.BufferBindingTypeStorage
	default:
		return entry, errors.Wrapf(ErrUnsupportedResource, "binding %s: var<%s> %s", d.name, d.addressSpace, d.typeName)
	}
	return entry, nil
}

// stripComments removes line comments and nested block comments.
func stripComments(source string) string {
	return stripLineComments(stripBlockComments(source))
}

func stripLineComments(source string) string {
	var sb strings.Builder
	for line := range strings.SplitSeq(source, "\n") {
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func stripBlockComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		if i+1 < len(source) {
			switch {
			case source[i] == '/' && source[i+1] == '*':
				depth++
				i++
				continue
			case source[i] == '*' && source[i+1] == '/' && depth > 0:
				depth--
				i++
				continue
			}
		}
		if depth == 0 {
			sb.WriteByte(source[i])
		}
	}
	return sb.String()
}

// splitAtTopLevelCommas splits on commas outside angle brackets, so array<T, N> stays whole.
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
