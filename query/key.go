package query

import (
	"encoding/json"
	"strings"
)

// Key identifies a cache entry. Keys are ordered tuples compared element by
// element, with the resource name first.
type Key []string

func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix matches the leading elements of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	return k[:len(prefix)].Equal(prefix)
}

// Resource is the first element, used to label metrics.
func (k Key) Resource() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

func (k Key) String() string {
	return strings.Join(k, ".")
}

// id is the unambiguous map key for k.
func (k Key) id() string {
	b, _ := json.Marshal([]string(k))
	return string(b)
}

// KeyFactory builds the hierarchical keys of one resource:
//
//	[accounts]                 All
//	[accounts list]            Lists
//	[accounts list <params>]   List
//	[accounts detail <id>]     Detail
type KeyFactory struct {
	Resource string
}

func (f KeyFactory) All() Key {
	return Key{f.Resource}
}

func (f KeyFactory) Lists() Key {
	return Key{f.Resource, "list"}
}

func (f KeyFactory) List(params ...string) Key {
	return append(f.Lists(), params...)
}

func (f KeyFactory) Details() Key {
	return Key{f.Resource, "detail"}
}

func (f KeyFactory) Detail(id string) Key {
	return append(f.Details(), id)
}
