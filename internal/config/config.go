// Package config loads, validates, persists, and hot-reloads the
// run-time configuration for a gravtree rank: the tree parameters
// (gravtree.Config), the transport it should join peers over, and the
// CPU cores (if any) it should pin its workers to.
package config

import (
	"encoding/json"
	"os"

	"github.com/Masterminds/semver/v3"

	"github.com/gravtree/gravtree/internal/affinity"
	"github.com/gravtree/gravtree/internal/gravtree"
	"github.com/gravtree/gravtree/internal/gtreeerr"
)

// CurrentSchemaVersion is the schema version this build writes and
// the one SchemaConstraint always accepts.
const CurrentSchemaVersion = "1.0.0"

// SchemaConstraint is the range of schema_version values this build
// can load: the whole 1.x major line, so a config written by an
// older 1.x build still loads, but a 2.x config (a breaking rewrite)
// is rejected instead of silently misread.
const SchemaConstraint = ">=1.0.0, <2.0.0"

// RunConfig is the on-disk, JSON-serializable configuration for one
// rank.
type RunConfig struct {
	SchemaVersion string `json:"schema_version"`

	Dim       int       `json:"dim"`
	DomainMin []float64 `json:"domain_min"`
	DomainMax []float64 `json:"domain_max"`

	Parallel  bool    `json:"parallel"`
	SplitKind string  `json:"split_kind"` // "barnes_hut" | "acceleration"
	OpenAngle float64 `json:"open_angle"`
	MaxExport int     `json:"max_export"`
	Softening float64 `json:"softening,omitempty"`

	AffinityCores []int `json:"affinity_cores,omitempty"`

	Transport TransportConfig `json:"transport"`
}

// TransportConfig selects how a rank reaches its peers.
type TransportConfig struct {
	// Kind is "inprocess" (goroutine-simulated ranks, one binary) or
	// "quic" (real OS processes over the network).
	Kind string `json:"kind"`
	// Addresses[r] is the address rank r listens on; required and
	// only consulted when Kind is "quic".
	Addresses []string `json:"addresses,omitempty"`
}

// Default returns a single-rank, in-process RunConfig for a 3D
// Barnes-Hut tree with theta=0.5, suitable as a starting point for
// the init subcommand.
func Default() *RunConfig {
	return &RunConfig{
		SchemaVersion: CurrentSchemaVersion,
		Dim:           3,
		DomainMin:     []float64{-1, -1, -1},
		DomainMax:     []float64{1, 1, 1},
		Parallel:      false,
		SplitKind:     "barnes_hut",
		OpenAngle:     0.5,
		MaxExport:     4096,
		Transport:     TransportConfig{Kind: "inprocess"},
	}
}

// Load reads and validates the RunConfig at path.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rc RunConfig
	if err := json.Unmarshal(data, &rc); err != nil {
		return nil, gtreeerr.Configuration("parse %s: %v", path, err)
	}

	if err := rc.validate(); err != nil {
		return nil, err
	}

	return &rc, nil
}

// Save writes rc to path as indented JSON, creating or truncating it.
func Save(path string, rc *RunConfig) error {
	data, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func (rc *RunConfig) validate() error {
	version, err := semver.NewVersion(rc.SchemaVersion)
	if err != nil {
		return gtreeerr.Configuration("invalid schema_version %q: %v", rc.SchemaVersion, err)
	}

	constraint, err := semver.NewConstraint(SchemaConstraint)
	if err != nil {
		// SchemaConstraint is a compile-time constant; a parse
		// failure here is a programmer error, not bad input.
		panic(err)
	}

	if !constraint.Check(version) {
		return gtreeerr.Configuration("schema_version %s does not satisfy %s", rc.SchemaVersion, SchemaConstraint)
	}

	if rc.Dim != 2 && rc.Dim != 3 {
		return gtreeerr.Configuration("dim must be 2 or 3, got %d", rc.Dim)
	}

	if len(rc.DomainMin) < rc.Dim || len(rc.DomainMax) < rc.Dim {
		return gtreeerr.Configuration("domain_min/domain_max must have at least %d components", rc.Dim)
	}

	switch rc.SplitKind {
	case "barnes_hut", "acceleration":
	default:
		return gtreeerr.Configuration("unknown split_kind %q", rc.SplitKind)
	}

	if rc.Parallel {
		switch rc.Transport.Kind {
		case "inprocess":
		case "quic":
			if len(rc.Transport.Addresses) == 0 {
				return gtreeerr.Configuration("transport.kind=quic requires transport.addresses")
			}
		default:
			return gtreeerr.Configuration("unknown transport.kind %q", rc.Transport.Kind)
		}
	}

	return nil
}

// GravTreeConfig translates rc into a gravtree.Config; gravtree.New
// runs its own, independent validation over the result.
func (rc *RunConfig) GravTreeConfig() (gravtree.Config, error) {
	var kind gravtree.SplitKind

	switch rc.SplitKind {
	case "barnes_hut":
		kind = gravtree.BarnesHut
	case "acceleration":
		kind = gravtree.Acceleration
	default:
		return gravtree.Config{}, gtreeerr.Configuration("unknown split_kind %q", rc.SplitKind)
	}

	cfg := gravtree.Config{
		Dim:       rc.Dim,
		Parallel:  rc.Parallel,
		SplitKind: kind,
		OpenAngle: rc.OpenAngle,
		MaxExport: rc.MaxExport,
		Softening: rc.Softening,
	}

	for k := 0; k < rc.Dim; k++ {
		cfg.DomainMin[k] = rc.DomainMin[k]
		cfg.DomainMax[k] = rc.DomainMax[k]
	}

	return cfg, nil
}

// AffinityConfig translates rc's affinity_cores into an affinity.Config.
func (rc *RunConfig) AffinityConfig() affinity.Config {
	return affinity.Config{Cores: rc.AffinityCores}
}
