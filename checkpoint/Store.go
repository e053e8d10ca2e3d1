package checkpoint

// Store persists snapshot artifacts together with their Records. A
// Store writes an artifact and its Record atomically with respect to
// readers of the same name: Get never observes the artifact of one
// Put with the Record of another unless a write failed midway, in
// which case the checksum stored in the Record does not match.
type Store interface {
	// Put stores an artifact and its record under rec.Name, replacing
	// any previous ones, and returns the artifact's location.
	Put(rec Record, artifact []byte) (location string, err error)

	// Get returns the artifact and record stored under name. The
	// boolean is false if nothing is stored under name.
	Get(name string) (artifact []byte, rec Record, ok bool, err error)

	// Resolve maps a name or a location returned by Put to a name. A
	// location that no longer exists yields an error wrapping
	// fs.ErrNotExist; a location the store does not own yields an error
	// wrapping ErrInvalidName.
	Resolve(nameOrLocation string) (string, error)

	// Records returns the records of every stored snapshot in no
	// particular order.
	Records() ([]Record, error)

	// Delete removes the artifact and record stored under name and
	// reports whether anything was removed.
	Delete(name string) (bool, error)

	Close() error
}
