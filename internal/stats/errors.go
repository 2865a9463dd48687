package stats

import (
	"errors"
	"fmt"
)

// MalformedEventError marks an event that references state the indexer has
// never seen, such as a bet on an unknown market. These are logged and
// skipped; retrying them cannot succeed.
type MalformedEventError struct {
	Event  string
	Ref    string
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed %s event %s: %s", e.Event, e.Ref, e.Reason)
}

// IsMalformed reports whether err is a MalformedEventError.
func IsMalformed(err error) bool {
	var malformed *MalformedEventError
	return errors.As(err, &malformed)
}
