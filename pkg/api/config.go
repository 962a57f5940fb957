package api

// ConfigOption is one named configuration option recognized by an
// operation. Options are registered explicitly instead of resolved by
// reflection; SetConfig and GetConfig reject unknown names with a
// ConfigurationError.
type ConfigOption struct {
	Name string

	// Get returns the current value. Called under a read-held process
	// lock.
	Get func() any

	// Set applies a new value. Called under a write-held process lock, so
	// it never overlaps ProcessFunc or SyncFunc. A Set error is returned
	// to the SetConfig caller unchanged.
	Set func(v any) error
}
