package vault

import (
	"fmt"
	"path"
	"strings"
)

// checkKey rejects keys that are empty, absolute or climb out of the vault.
func checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("archive key is empty")
	}
	clean := path.Clean(key)
	if strings.HasPrefix(key, "/") || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("archive key %q escapes the vault", key)
	}
	return nil
}

// joinKey prefixes key with a slash-separated prefix.
func joinKey(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
