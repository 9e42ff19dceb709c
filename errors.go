// errors.go
package chatuser

import "errors"

var (
	// ErrMissingDB is returned by New when no relational database handle was configured.
	ErrMissingDB = errors.New("no database handle configured")
	// ErrMissingRedis is returned by New when no redis client was configured.
	ErrMissingRedis = errors.New("no redis client configured")
	// ErrMissingStream is returned by New when no stream context was configured.
	ErrMissingStream = errors.New("no stream context configured")
)
