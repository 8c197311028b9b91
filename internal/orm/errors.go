package orm

import "errors"

// ErrInvalidID is returned by Update when the record's id field does not
// parse as a lexokey.
var ErrInvalidID = errors.New("orm: invalid or missing id")

// ErrNotFound is returned by Update when no row exists under the
// record's id.
var ErrNotFound = errors.New("orm: row not found")

// ErrMandatoryField is returned by Schema.New when data omits a field
// declared without a default.
var ErrMandatoryField = errors.New("orm: missing mandatory field")
