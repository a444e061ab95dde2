package cachekit

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The service calls them on hot paths.
type Hooks interface {
	// An engine read failed and the caller got its default instead.
	ReadDegraded(storageKey string, err error)

	// An entry was deleted by the service on read.
	// reason ∈ {"value_decode"}
	SelfHeal(storageKey, reason string)

	// A Hydrate call joined a load already running for the same key.
	HydrateShared(storageKey string)

	// A hydrated value could not be written back. Waiters still got the value.
	HydrateStoreFailed(storageKey string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) ReadDegraded(string, error)       {}
func (NopHooks) SelfHeal(string, string)          {}
func (NopHooks) HydrateShared(string)             {}
func (NopHooks) HydrateStoreFailed(string, error) {}
