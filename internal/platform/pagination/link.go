package pagination

import (
	"fmt"
	"net/url"
)

// NextLink builds the RFC 8288 Link header value pointing at the page after
// the current one. Existing query parameters are kept and cursor is replaced.
// An empty cursor means there is no next page and yields "".
func NextLink(baseURL string, query url.Values, cursor string) string {
	if cursor == "" {
		return ""
	}
	q := cloneValues(query)
	q.Set("cursor", cursor)
	return fmt.Sprintf("<%s?%s>; rel=\"next\"", baseURL, q.Encode())
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return make(url.Values)
	}
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
