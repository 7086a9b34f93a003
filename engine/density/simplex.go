package density

import (
	"github.com/go-gl/mathgl/mgl32"
	opensimplex "github.com/ojrac/opensimplex-go"
)

// simplexField sums octaves of normalized OpenSimplex noise (fractal Brownian motion) and
// carves empty sky out of everything below the coverage threshold.
type simplexField struct {
	noise       opensimplex.Noise32
	frequency   float32
	octaves     int
	persistence float32
	lacunarity  float32
	coverage    float32
}

func newSimplexField(p params) *simplexField {
	return &simplexField{
		noise:       opensimplex.NewNormalized32(p.seed),
		frequency:   p.frequency,
		octaves:     max(p.octaves, 1),
		persistence: p.persistence,
		lacunarity:  p.lacunarity,
		coverage:    p.coverage,
	}
}

func (s *simplexField) Sample(p mgl32.Vec3) float32 {
	var sum, norm float32
	amplitude := float32(1)
	frequency := s.frequency
	for range s.octaves {
		sum += amplitude * s.noise.Eval3(p[0]*frequency, p[1]*frequency, p[2]*frequency)
		norm += amplitude
		amplitude *= s.persistence
		frequency *= s.lacunarity
	}
	if norm == 0 {
		return 0
	}
	n := sum / norm
	// n < 1 for normalized noise, so coverage >= 1 always lands here.
	if n <= s.coverage {
		return 0
	}
	return (n - s.coverage) / (1 - s.coverage)
}
