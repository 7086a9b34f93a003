package cloud

import (
	"github.com/BurntSushi/toml"
	"github.com/Carmen-Shannon/oxy-sky/common"
	"github.com/Carmen-Shannon/oxy-sky/engine/density"
	"github.com/Carmen-Shannon/oxy-sky/engine/octree"
	"github.com/pkg/errors"
)

// MinBufferCapacity is the smallest node buffer, in records, that a cloud allocates.
const MinBufferCapacity uint32 = 64

// ErrInvalidConfig is returned when a configuration value is outside its domain.
var ErrInvalidConfig = errors.New("invalid cloud config")

// Config is the full configuration of a cloud: tree construction, LOD and density generator parameters.
// It is decoded from TOML with the keys given in the struct tags.
type Config struct {
	HalfSize         float32 `toml:"half_size"`
	MaxDepth         uint32  `toml:"max_depth"`
	DensityThreshold float32 `toml:"density_threshold"`
	VoxelSize        float32 `toml:"voxel_size"`
	MaxNodes         int     `toml:"max_nodes"`

	Generator   string  `toml:"generator"`
	Seed        int64   `toml:"seed"`
	Frequency   float32 `toml:"frequency"`
	Octaves     int     `toml:"octaves"`
	Persistence float32 `toml:"persistence"`
	Lacunarity  float32 `toml:"lacunarity"`
	Coverage    float32 `toml:"coverage"`
	Value       float32 `toml:"value"`  // constant density, or sphere peak
	Radius      float32 `toml:"radius"` // sphere radius

	InitialBufferCapacity uint32 `toml:"initial_buffer_capacity"`
	BuildWorkers          int    `toml:"build_workers"`
}

// DefaultConfig returns the production defaults: a 100 unit simplex cloud refined to depth 20.
//
// Returns:
//   - Config: the default configuration
func DefaultConfig() Config {
	return Config{
		HalfSize:              octree.DefaultHalfSize,
		MaxDepth:              octree.DefaultMaxDepth,
		DensityThreshold:      octree.DefaultDensityThreshold,
		VoxelSize:             octree.DefaultVoxelSize,
		MaxNodes:              octree.DefaultMaxNodes,
		Generator:             density.GeneratorSimplex.String(),
		Frequency:             0.01,
		Octaves:               3,
		Persistence:           0.5,
		Lacunarity:            2.0,
		Coverage:              0.35,
		Value:                 1.0,
		Radius:                50,
		InitialBufferCapacity: MinBufferCapacity,
		BuildWorkers:          1,
	}
}

// LoadConfig decodes a TOML file on top of DefaultConfig, so keys missing from the file keep their defaults.
//
// Parameters:
//   - path: the TOML file path
//
// Returns:
//   - Config: the decoded configuration
//   - error: an error if the file cannot be read or decoded, or names an unknown key
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "decode %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Wrapf(ErrInvalidConfig, "%s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}

// ParseConfig decodes TOML text on top of DefaultConfig.
//
// Parameters:
//   - data: the TOML document
//
// Returns:
//   - Config: the decoded configuration
//   - error: an error if the document cannot be decoded or names an unknown key
func ParseConfig(data string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Wrapf(ErrInvalidConfig, "unknown key %q", undecoded[0].String())
	}
	return cfg, nil
}

// withDefaults fills fields whose zero value is never meaningful. MaxDepth, DensityThreshold, Seed, Coverage
// and Persistence are taken as given because zero is a valid setting for each.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	c.VoxelSize = common.Coalesce(c.VoxelSize, d.VoxelSize)
	c.MaxNodes = common.Coalesce(c.MaxNodes, d.MaxNodes)
	c.Generator = common.Coalesce(c.Generator, d.Generator)
	c.Frequency = common.Coalesce(c.Frequency, d.Frequency)
	c.Octaves = common.Coalesce(c.Octaves, d.Octaves)
	c.Lacunarity = common.Coalesce(c.Lacunarity, d.Lacunarity)
	c.Value = common.Coalesce(c.Value, d.Value)
	c.Radius = common.Coalesce(c.Radius, d.Radius)
	c.InitialBufferCapacity = max(common.Coalesce(c.InitialBufferCapacity, d.InitialBufferCapacity), MinBufferCapacity)
	c.BuildWorkers = common.Coalesce(c.BuildWorkers, d.BuildWorkers)
	return c
}

// Validate checks the configuration after defaults are applied.
//
// Returns:
//   - error: wraps octree.ErrConstruction for an unusable half size, density.ErrUnknownGenerator for an unknown
//     generator name, and ErrInvalidConfig for everything else; nil if valid
func (c Config) Validate() error {
	c = c.withDefaults()
	if !common.Finite(c.HalfSize) || c.HalfSize <= 0 {
		return errors.Wrapf(octree.ErrConstruction, "half_size %v must be positive and finite", c.HalfSize)
	}
	if _, err := density.ParseGenerator(c.Generator); err != nil {
		return err
	}
	if !common.Finite(c.VoxelSize) || c.VoxelSize < 0 {
		return errors.Wrapf(ErrInvalidConfig, "voxel_size %v", c.VoxelSize)
	}
	if !common.Finite(c.DensityThreshold) {
		return errors.Wrapf(ErrInvalidConfig, "density_threshold %v", c.DensityThreshold)
	}
	if c.MaxNodes < 0 {
		return errors.Wrapf(ErrInvalidConfig, "max_nodes %d", c.MaxNodes)
	}
	if c.BuildWorkers < 0 {
		return errors.Wrapf(ErrInvalidConfig, "build_workers %d", c.BuildWorkers)
	}
	return nil
}

// Field constructs the density field described by the generator settings.
//
// Returns:
//   - density.Field: the configured field
//   - error: an error wrapping density.ErrUnknownGenerator if the generator is unknown
func (c Config) Field() (density.Field, error) {
	c = c.withDefaults()
	gen, err := density.ParseGenerator(c.Generator)
	if err != nil {
		return nil, err
	}
	return density.New(gen,
		density.WithSeed(c.Seed),
		density.WithFrequency(c.Frequency),
		density.WithOctaves(c.Octaves),
		density.WithPersistence(c.Persistence),
		density.WithLacunarity(c.Lacunarity),
		density.WithCoverage(c.Coverage),
		density.WithValue(c.Value),
		density.WithRadius(c.Radius),
	)
}

// OctreeInfo converts the configuration into tree construction parameters.
//
// Returns:
//   - octree.OctreeInfo: the construction parameters
//   - error: an error if the generator cannot be created
func (c Config) OctreeInfo() (octree.OctreeInfo, error) {
	c = c.withDefaults()
	field, err := c.Field()
	if err != nil {
		return octree.OctreeInfo{}, err
	}
	return octree.NewOctreeInfo(
		octree.WithHalfSize(c.HalfSize),
		octree.WithMaxDepth(c.MaxDepth),
		octree.WithDensityThreshold(c.DensityThreshold),
		octree.WithMaxNodes(c.MaxNodes),
		octree.WithGenerator(field),
	), nil
}
