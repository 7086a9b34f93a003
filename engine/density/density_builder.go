package density

// params collects the configuration of every generator. Each generator reads only the fields it needs.
type params struct {
	seed        int64
	frequency   float32
	octaves     int
	persistence float32
	lacunarity  float32
	coverage    float32
	value       float32
	radius      float32
}

func defaultParams() params {
	return params{
		seed:        0,
		frequency:   0.01,
		octaves:     3,
		persistence: 0.5,
		lacunarity:  2.0,
		coverage:    0.35,
		value:       1.0,
		radius:      50.0,
	}
}

// FieldOption is a functional option applied to the generator parameters in New.
type FieldOption func(*params)

// WithSeed sets the noise seed.
//
// Parameters:
//   - seed: the seed passed to the noise source
//
// Returns:
//   - FieldOption: a function that sets the seed
func WithSeed(seed int64) FieldOption {
	return func(p *params) {
		p.seed = seed
	}
}

// WithFrequency sets the base spatial frequency of the noise (cycles per world unit).
//
// Parameters:
//   - frequency: the base frequency
//
// Returns:
//   - FieldOption: a function that sets the frequency
func WithFrequency(frequency float32) FieldOption {
	return func(p *params) {
		p.frequency = frequency
	}
}

// WithOctaves sets how many noise octaves are summed. Values below 1 are treated as 1.
//
// Parameters:
//   - octaves: number of fBm layers
//
// Returns:
//   - FieldOption: a function that sets the octave count
func WithOctaves(octaves int) FieldOption {
	return func(p *params) {
		p.octaves = max(octaves, 1)
	}
}

// WithPersistence sets the amplitude multiplier applied per octave.
//
// Parameters:
//   - persistence: amplitude falloff per octave
//
// Returns:
//   - FieldOption: a function that sets the persistence
func WithPersistence(persistence float32) FieldOption {
	return func(p *params) {
		p.persistence = persistence
	}
}

// WithLacunarity sets the frequency multiplier applied per octave.
//
// Parameters:
//   - lacunarity: frequency growth per octave
//
// Returns:
//   - FieldOption: a function that sets the lacunarity
func WithLacunarity(lacunarity float32) FieldOption {
	return func(p *params) {
		p.lacunarity = lacunarity
	}
}

// WithCoverage sets the noise level below which space is empty sky.
// Noise above the threshold is remapped to (0, 1].
//
// Parameters:
//   - coverage: threshold in [0, 1)
//
// Returns:
//   - FieldOption: a function that sets the coverage threshold
func WithCoverage(coverage float32) FieldOption {
	return func(p *params) {
		p.coverage = coverage
	}
}

// WithValue sets the density of the constant generator and the peak density of the sphere generator.
//
// Parameters:
//   - value: the density value
//
// Returns:
//   - FieldOption: a function that sets the value
func WithValue(value float32) FieldOption {
	return func(p *params) {
		p.value = value
	}
}

// WithRadius sets the radius of the sphere generator.
//
// Parameters:
//   - radius: sphere radius in world units
//
// Returns:
//   - FieldOption: a function that sets the radius
func WithRadius(radius float32) FieldOption {
	return func(p *params) {
		p.radius = radius
	}
}
