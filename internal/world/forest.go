// Forest generation using layered simplex noise.
// Tree density follows a noise field so the forest grows in clumps and
// clearings rather than a uniform scatter.
package world

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// ForestConfig holds forest generation parameters.
type ForestConfig struct {
	Seed      int64   `yaml:"seed"`      // Random seed (0 = random)
	Radius    float64 `yaml:"radius"`    // Trees are placed within this distance of Center
	Spacing   float64 `yaml:"spacing"`   // Grid spacing between candidate tree positions
	Jitter    float64 `yaml:"jitter"`    // Fraction of Spacing a tree may drift from its grid point (0–0.5)
	Threshold float64 `yaml:"threshold"` // Density noise above this grows a tree (0.0–1.0)
	Frequency float64 `yaml:"frequency"` // Base noise frequency
	Clearing  float64 `yaml:"clearing"`  // No trees within this distance of Center (camp clearing)
	MaxTrees  int     `yaml:"max_trees"` // 0 = unlimited
	Center    Vec3    `yaml:"center"`
}

// DefaultForestConfig returns a reasonable starting configuration.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Radius:    40,
		Spacing:   2.5,
		Jitter:    0.35,
		Threshold: 0.52,
		Frequency: 0.08,
		Clearing:  6,
	}
}

// SmallTestForest returns a tiny forest for rapid iteration.
func SmallTestForest() ForestConfig {
	return ForestConfig{
		Seed:      42,
		Radius:    12,
		Spacing:   2,
		Jitter:    0.25,
		Threshold: 0.40,
		Frequency: 0.15,
		Clearing:  3,
	}
}

// GenerateForest returns tree positions in deterministic grid order.
// The same config and non-zero seed always yield the same forest.
func GenerateForest(cfg ForestConfig) []Vec3 {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	if cfg.Spacing <= 0 {
		return nil
	}

	density := opensimplex.NewNormalized(seed)
	rng := rand.New(rand.NewSource(seed + 100))

	steps := int(math.Ceil(cfg.Radius / cfg.Spacing))
	var trees []Vec3

	for gz := -steps; gz <= steps; gz++ {
		for gx := -steps; gx <= steps; gx++ {
			x := float64(gx) * cfg.Spacing
			z := float64(gz) * cfg.Spacing

			// Draw jitter for every grid point so the layout does not shift
			// when the threshold changes.
			jx := (rng.Float64()*2 - 1) * cfg.Jitter * cfg.Spacing
			jz := (rng.Float64()*2 - 1) * cfg.Jitter * cfg.Spacing

			r := math.Hypot(x, z)
			if r > cfg.Radius || r < cfg.Clearing {
				continue
			}

			d := octaveNoise(density, x, z, 3, cfg.Frequency, 0.5)
			// Thin the forest toward its rim.
			d *= 1.0 - 0.3*math.Pow(r/cfg.Radius, 2)
			if d < cfg.Threshold {
				continue
			}

			pos := Vec3{X: cfg.Center.X + x + jx, Y: cfg.Center.Y, Z: cfg.Center.Z + z + jz}
			if Distance(pos, cfg.Center) < cfg.Clearing {
				continue
			}
			trees = append(trees, pos)
			if cfg.MaxTrees > 0 && len(trees) >= cfg.MaxTrees {
				return trees
			}
		}
	}
	return trees
}

// octaveNoise sums several noise octaves into a 0–1 value.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
