package fetch

import (
	"net/url"
	"strings"

	"github.com/hospitaltm/citas-dashboard/internal/dashboard/filter"
)

// IsSentinel reports whether v means "no filter" and must not be sent.
func IsSentinel(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "0", "all":
		return true
	}
	return false
}

// BuildQuery turns a filter set into query parameters. Sentinel values are
// dropped and multi-valued keys are comma-joined.
func BuildQuery(set filter.Set) url.Values {
	q := url.Values{}
	for _, key := range set.Keys() {
		var vals []string
		for _, v := range set.Values(key) {
			if !IsSentinel(v) {
				vals = append(vals, v)
			}
		}
		if len(vals) > 0 {
			q.Set(key, strings.Join(vals, ","))
		}
	}
	return q
}
