package shopgoodwill

import "strings"

// The buyer API answers 403 to library user agents, so requests always carry
// a browser one.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 6.1; WOW64; rv:12.0) Gecko/20100101 Firefox/12.0"

// NormalizeUserAgent returns ua when it looks like a browser and the default
// browser user agent otherwise.
func NormalizeUserAgent(ua string) string {
	v := strings.TrimSpace(ua)
	if v == "" || !looksLikeBrowserUA(v) {
		return defaultUserAgent
	}
	return v
}

func looksLikeBrowserUA(ua string) bool {
	s := strings.ToLower(ua)
	if !strings.HasPrefix(s, "mozilla/") {
		return false
	}
	for _, lib := range []string{"go-http-client", "go-resty", "python-requests", "curl/"} {
		if strings.Contains(s, lib) {
			return false
		}
	}
	return true
}
