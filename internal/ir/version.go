package ir

// Version constants for the persisted layout and the uow binary.
const (
	// SchemaVersion is the storage schema version written to user_version.
	SchemaVersion = 1

	// EngineVersion is reported by uow --version.
	EngineVersion = "0.1.0"
)
