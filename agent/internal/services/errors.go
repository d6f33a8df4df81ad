package services

import "errors"

// ErrDataUnavailable means the upstream market data source has nothing for
// the token and no stale cache entry exists. Callers degrade the affected
// fields to zero instead of dropping the event.
var ErrDataUnavailable = errors.New("market data unavailable")
