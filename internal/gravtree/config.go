package gravtree

import "github.com/gravtree/gravtree/internal/gtreeerr"

// Config configures a Tree at construction time. All fields are
// validated once by New; a rejected Config never produces a Tree.
type Config struct {
	// Dim is the spatial dimensionality: 2 (quad-tree) or 3 (oct-tree).
	Dim int
	// DomainMin/DomainMax bound the physical domain the root cell
	// covers; only the first Dim components are read.
	DomainMin [maxDim]float64
	DomainMax [maxDim]float64
	// Parallel selects whether Attach is required before Build.
	Parallel bool
	// SplitKind selects the opening-criterion implementation.
	SplitKind SplitKind
	// OpenAngle is theta, the Barnes-Hut/MAC opening angle; must lie
	// in (0, 1].
	OpenAngle float64
	// MaxExport bounds the number of (particle, rank) pairs buffered
	// per round of the parallel export walk; must be positive.
	MaxExport int
	// Softening, if > 0, selects SoftenedGravity (Plummer softening)
	// in place of the default MonopoleGravity kernel.
	Softening float64
}

func (c Config) validate() error {
	if c.Dim != 2 && c.Dim != 3 {
		return gtreeerr.Configuration("dim must be 2 or 3, got %d", c.Dim)
	}

	if c.OpenAngle <= 0 || c.OpenAngle > 1 {
		return gtreeerr.Configuration("open angle must be in (0,1], got %g", c.OpenAngle)
	}

	if c.MaxExport <= 0 {
		return gtreeerr.Configuration("max export must be positive, got %d", c.MaxExport)
	}

	for k := 0; k < c.Dim; k++ {
		if c.DomainMax[k] <= c.DomainMin[k] {
			return gtreeerr.Configuration("domain max must exceed domain min on axis %d", k)
		}
	}

	if c.Softening < 0 {
		return gtreeerr.Configuration("softening must be non-negative, got %g", c.Softening)
	}

	return nil
}
