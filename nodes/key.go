package nodes

import (
	"errors"
	"fmt"
	"strings"
)

const (
	keySeparator = "-"
	urlSeparator = "/"
	urlSuffix    = ".json"
)

// ErrMalformedURL is returned when a resource URL cannot be mapped to a key.
var ErrMalformedURL = errors.New("malformed resource url")

// KeyFromURL derives the node key of a resource URL.
//
// Every path separator is replaced by "-" and the trailing ".json" suffix is
// stripped, so "/demuxers/0/programs/1.json" becomes "-demuxers-0-programs-1".
// URLs that already contain "-" are rejected since URLFromKey could not
// reverse them.
func KeyFromURL(url string) (string, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty url", ErrMalformedURL)
	}
	if strings.Contains(trimmed, keySeparator) {
		return "", fmt.Errorf("%w: %q contains %q", ErrMalformedURL, trimmed, keySeparator)
	}
	trimmed = strings.TrimSuffix(trimmed, urlSuffix)
	if trimmed == "" {
		return "", fmt.Errorf("%w: %q has no path", ErrMalformedURL, url)
	}
	return strings.ReplaceAll(trimmed, urlSeparator, keySeparator), nil
}

// URLFromKey is the inverse of KeyFromURL.
func URLFromKey(key string) string {
	return strings.ReplaceAll(key, keySeparator, urlSeparator) + urlSuffix
}

// IDInURL returns the token that follows schemeTag in url. The token ends at
// the next "/" or "." (the latter being the ".json" suffix).
func IDInURL(url, schemeTag string) (string, bool) {
	if schemeTag == "" {
		return "", false
	}
	idx := strings.Index(url, schemeTag)
	if idx < 0 {
		return "", false
	}
	rest := url[idx+len(schemeTag):]
	stop := strings.IndexAny(rest, "/.")
	if stop < 0 {
		return "", false
	}
	return rest[:stop], true
}
