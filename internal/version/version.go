// Package version holds the canonical version constants stamped into
// analysis runs, snapshot payloads, and the identity descriptor.
package version

const (
	// SchemaVersion identifies the shape of the canonical snapshot payload.
	SchemaVersion = "1.0.0"

	// ConfigVersion identifies the classification keyword tables and scoring
	// constants. Any change to either invalidates hash comparisons across
	// deployments.
	ConfigVersion = "1.0.0"

	// RoleVersion tags txn-entity mappings with the classifier rule set that
	// produced them.
	RoleVersion = "v1_rules"

	// TransferRuleVersion tags transfer links with the pairing rule set.
	TransferRuleVersion = "v1_transfer_rule"
)

// Identity describes the pipeline build to callers that compare hashes
// across deployments.
type Identity struct {
	SchemaVersion     string `json:"schema_version"`
	ConfigVersion     string `json:"config_version"`
	DeterministicMode bool   `json:"deterministic_mode"`
}

// Current returns the identity descriptor for this build. Deterministic mode
// is always on; the field exists so callers can reject a build where it is
// ever reported off.
func Current() Identity {
	return Identity{
		SchemaVersion:     SchemaVersion,
		ConfigVersion:     ConfigVersion,
		DeterministicMode: true,
	}
}
