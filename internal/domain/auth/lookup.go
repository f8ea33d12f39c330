package auth

// LookupStatus tags the outcome of fetching a record by identity id.
type LookupStatus int

const (
	LookupFound LookupStatus = iota + 1
	LookupNotFound
	LookupFailed
)

func (s LookupStatus) String() string {
	switch s {
	case LookupFound:
		return "found"
	case LookupNotFound:
		return "not_found"
	case LookupFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Lookup is a tagged result: Found(record) | NotFound | Failed(err).
// NotFound is not an error; it triggers provisioning.
type Lookup[T any] struct {
	Status LookupStatus
	Record T
	Err    error
}

// Found wraps an existing record.
func Found[T any](rec T) Lookup[T] { return Lookup[T]{Status: LookupFound, Record: rec} }

// NotFound reports that no record exists.
func NotFound[T any]() Lookup[T] { return Lookup[T]{Status: LookupNotFound} }

// Failed wraps a lookup failure other than not-found.
func Failed[T any](err error) Lookup[T] { return Lookup[T]{Status: LookupFailed, Err: err} }
