package checkin

import (
	"regexp"
	"strings"
)

// cookiePair grabs the leading name=value of a Set-Cookie header; attributes
// after the first ';' are ignored.
var cookiePair = regexp.MustCompile(`^([^=]*)=([^;]*)`)

// NormalizeCookies folds raw Set-Cookie headers into one Cookie header value.
// A repeated name keeps its first position but takes the last value.
func NormalizeCookies(headers []string) string {
	names := make([]string, 0, len(headers))
	values := make(map[string]string, len(headers))

	for _, h := range headers {
		m := cookiePair.FindStringSubmatch(h)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if name == "" {
			continue
		}
		if _, seen := values[name]; !seen {
			names = append(names, name)
		}
		values[name] = strings.TrimSpace(m[2])
	}

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+values[name])
	}
	return strings.Join(pairs, "; ")
}
