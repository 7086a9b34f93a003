package density

import (
	"strings"

	"github.com/Carmen-Shannon/oxy-sky/common"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// FullyDense is the conservative value substituted for non-finite samples.
const FullyDense float32 = 1.0

// ErrUnknownGenerator is returned when a generator selection does not name a known Field implementation.
var ErrUnknownGenerator = errors.New("unknown density generator")

// Field is a pure sampling capability mapping a world-space position to a scalar density.
// Implementations must be deterministic for a fixed configuration and seed, free of side effects,
// and must accept any finite position.
type Field interface {
	// Sample returns the density at the given position.
	//
	// Parameters:
	//   - p: world-space position
	//
	// Returns:
	//   - float32: the density, nominally in [0, 1]
	Sample(p mgl32.Vec3) float32
}

// FieldFunc adapts a plain function to the Field interface.
type FieldFunc func(p mgl32.Vec3) float32

// Sample calls f(p).
func (f FieldFunc) Sample(p mgl32.Vec3) float32 {
	return f(p)
}

// Generator selects a concrete Field implementation at construction time.
type Generator int

const (
	// GeneratorSimplex is fractal OpenSimplex noise shaped by a coverage threshold.
	GeneratorSimplex Generator = iota
	// GeneratorConstant fills all of space with a single density value.
	GeneratorConstant
	// GeneratorSphere is a single soft cloud blob centered at the origin.
	GeneratorSphere
)

var generatorNames = map[Generator]string{
	GeneratorSimplex:  "simplex",
	GeneratorConstant: "constant",
	GeneratorSphere:   "sphere",
}

// String returns the configuration name of the generator.
func (g Generator) String() string {
	if name, ok := generatorNames[g]; ok {
		return name
	}
	return "unknown"
}

// ParseGenerator resolves a configuration name into a Generator. Matching is case-insensitive.
//
// Parameters:
//   - name: the generator name (e.g. "simplex")
//
// Returns:
//   - Generator: the matching generator
//   - error: ErrUnknownGenerator if the name does not match
func ParseGenerator(name string) (Generator, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for g, gName := range generatorNames {
		if gName == n {
			return g, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownGenerator, "%q", name)
}

// New constructs the Field selected by gen, configured by the given options.
//
// Parameters:
//   - gen: which implementation to build
//   - options: functional options shared by all generators (unused fields are ignored)
//
// Returns:
//   - Field: the configured density field
//   - error: ErrUnknownGenerator if gen is not a known generator
func New(gen Generator, options ...FieldOption) (Field, error) {
	p := defaultParams()
	for _, opt := range options {
		opt(&p)
	}

	switch gen {
	case GeneratorSimplex:
		return newSimplexField(p), nil
	case GeneratorConstant:
		return constantField(p.value), nil
	case GeneratorSphere:
		return sphereField{radius: p.radius, peak: p.value}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownGenerator, "generator %d", int(gen))
	}
}

// Sanitize maps a non-finite density to FullyDense and returns finite values unchanged.
//
// Parameters:
//   - v: the raw sample
//
// Returns:
//   - float32: a finite density
//   - bool: true if v was replaced
func Sanitize(v float32) (float32, bool) {
	if common.Finite(v) {
		return v, false
	}
	return FullyDense, true
}

// Sample samples f at p and applies Sanitize to the result.
//
// Parameters:
//   - f: the field to sample
//   - p: world-space position
//
// Returns:
//   - float32: a finite density
//   - bool: true if the raw sample was non-finite and was replaced
func Sample(f Field, p mgl32.Vec3) (float32, bool) {
	return Sanitize(f.Sample(p))
}

type constantField float32

func (c constantField) Sample(mgl32.Vec3) float32 {
	return float32(c)
}

// sphereField falls off linearly from peak at the origin to zero at radius.
type sphereField struct {
	radius float32
	peak   float32
}

func (s sphereField) Sample(p mgl32.Vec3) float32 {
	if s.radius <= 0 {
		return 0
	}
	d := p.Len() / s.radius
	if d >= 1 {
		return 0
	}
	return s.peak * (1 - d)
}
