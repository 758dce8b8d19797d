package memory

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Open returns a Store for rawURL:
//
//	"" or memory://              in-process MemoryStore
//	sqlite://path/to/file.db      SQLiteStore (sqlite://:memory: for a scratch db)
//	redis://host:6379/0           RedisStore (also rediss://)
//	postgres://user@host/db       PostgresStore (also postgresql://)
//	mem://, file:///dir, s3://…   BlobStore on any registered gocloud bucket
//
// Bucket URLs accept a "prefix" query parameter that is applied to object
// keys instead of being passed to the driver.
func Open(ctx context.Context, rawURL string) (Store, error) {
	if rawURL == "" {
		return NewMemoryStore(), nil
	}
	if path, ok := strings.CutPrefix(rawURL, "sqlite://"); ok {
		if path == "" {
			return nil, fmt.Errorf("%w: sqlite url has no path", ErrUnsupportedScheme)
		}
		return NewSQLiteStore(path)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse memory store url: %w", err)
	}

	switch u.Scheme {
	case "memory":
		return NewMemoryStore(), nil
	case "redis", "rediss":
		return OpenRedisStore(ctx, rawURL)
	case "postgres", "postgresql":
		return OpenPostgresStore(ctx, rawURL)
	case "":
		return nil, fmt.Errorf("%w: %q has no scheme", ErrUnsupportedScheme, rawURL)
	}

	bucketURL, prefix := rawURL, ""
	if q := u.Query(); q.Has("prefix") {
		prefix = q.Get("prefix")
		q.Del("prefix")
		bucketURL = u.Scheme + "://" + u.Host + u.Path
		if len(q) > 0 {
			bucketURL += "?" + q.Encode()
		}
	}

	store, err := OpenBlobStore(ctx, bucketURL, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedScheme, u.Scheme, err)
	}
	return store, nil
}
