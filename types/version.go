package types

// Version is the canonical project version.
// The CLI and the bundle manifest both report this version per the
// lockstep versioning policy.
const Version = "1.2.0"

// ManifestSchemaVersion is the workspace bundle manifest schema version.
// Import warns when a bundle carries a newer schema than this.
const ManifestSchemaVersion = "1.0"
