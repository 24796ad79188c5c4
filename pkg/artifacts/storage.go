package artifacts

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
)

// Storage persists build objects.
type Storage interface {
	// Store writes data at key and returns the URL it can be fetched from.
	Store(ctx context.Context, data []byte, key string) (string, error)
	// Delete removes the object at key. Missing objects are not an error.
	Delete(ctx context.Context, key string) error
	// HealthCheck reports whether the backend is reachable.
	HealthCheck(ctx context.Context) error
}

// cleanKey rejects keys that are empty, absolute or escape the storage root.
func cleanKey(key string) (string, error) {
	cleaned := path.Clean(strings.TrimSpace(key))
	if cleaned == "." || cleaned == "" || strings.HasPrefix(cleaned, "/") || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return cleaned, nil
}

func contentType(data []byte) string {
	return http.DetectContentType(data)
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
