package tevweb

import (
	"mime"
	"net/http"
	"strings"
)

const maxRequestBodySizeBytes = 1 * 1024 * 1024 // 1MB

func parseDefault[T any](s string, parse func(string) (T, error), def T) T {
	if v, err := parse(s); err == nil {
		return v
	}
	return def
}

func requestExplicitlyAccepts(r *http.Request, acceptable ...string) bool {
	accept := map[string]struct{}{}
	for _, a := range strings.Split(r.Header.Get("accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(a)
		if err != nil {
			continue
		}
		accept[mediaType] = struct{}{}
	}
	for _, want := range acceptable {
		if _, ok := accept[want]; ok {
			return true
		}
	}
	return false
}
