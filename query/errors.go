package query

import "fmt"

// TypeError reports a cache entry read back as a different type than it was
// stored with, which means two queries share a key.
type TypeError struct {
	Key Key
	Got interface{}
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("query: entry %s holds %T", e.Key, e.Got)
}
