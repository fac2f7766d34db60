package source

import "strings"

// relativeKey strips prefix and the separating slash from an object name.
func relativeKey(name, prefix string) string {
	return strings.TrimPrefix(strings.TrimPrefix(name, prefix), "/")
}

// fullKey joins prefix and key with a slash.
func fullKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
