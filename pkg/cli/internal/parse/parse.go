// Package parse provides string parsing utilities for CLI commands.
package parse

import (
	"fmt"
	"net/http"
	"strings"
)

// KeyValue splits s at the first of the given delimiters, defaulting to ':'.
func KeyValue(s string, delimiters ...rune) (key, value string, ok bool) {
	if len(delimiters) == 0 {
		delimiters = []rune{':'}
	}

	for i, c := range s {
		for _, d := range delimiters {
			if c == d {
				return s[:i], s[i+1:], true
			}
		}
	}
	return "", "", false
}

// Header builds request headers from "Key: value" strings.
// Repeated keys accumulate values.
func Header(values []string) (http.Header, error) {
	h := http.Header{}
	for _, v := range values {
		key, value, ok := KeyValue(v, ':')
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q: expected key:value", v)
		}
		h.Add(key, strings.TrimSpace(value))
	}
	return h, nil
}
