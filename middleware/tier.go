package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// ExtendedSelector decides per request whether the extended tier applies.
type ExtendedSelector func(*http.Request) bool

// ExtendedNever keeps every request on the standard tier.
func ExtendedNever() ExtendedSelector {
	return func(*http.Request) bool { return false }
}

// ExtendedHeader selects the extended tier when the named header carries a
// truthy value ("1", "true", "yes", "on").
func ExtendedHeader(name string) ExtendedSelector {
	return func(r *http.Request) bool {
		v := strings.TrimSpace(r.Header.Get(name))
		if strings.EqualFold(v, "yes") || strings.EqualFold(v, "on") {
			return true
		}
		b, err := strconv.ParseBool(v)
		return err == nil && b
	}
}

// ExtendedFunc adapts any predicate, e.g. one that looks at auth claims
// placed in the request context by an earlier middleware.
func ExtendedFunc(fn func(*http.Request) bool) ExtendedSelector {
	if fn == nil {
		return ExtendedNever()
	}
	return ExtendedSelector(fn)
}
