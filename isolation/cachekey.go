package isolation

import (
	"regexp"

	"github.com/hl8/hl8-go-pkg/errors"
)

// DefaultKeyPrefix is the conventional prefix for platform cache keys.
const DefaultKeyPrefix = "hl8:cache:"

// maxKeyLength bounds composed keys; redis itself allows far longer keys,
// the cap keeps SCAN patterns and log lines manageable.
const maxKeyLength = 256

var keyCharset = regexp.MustCompile(`^[A-Za-z0-9_:-]+$`)

// CacheKey is a fully-qualified, hierarchy-encoded cache key derived from an
// isolation Context. It is a value object: immutable, compared by its
// composed full key.
type CacheKey struct {
	prefix    string
	namespace string
	key       string
	level     Level
	fullKey   string

	// source context, nil for keys built without one (platform keys)
	ctx *Context
}

// CacheKeyForPlatform builds a platform-scoped key; no context is needed.
func CacheKeyForPlatform(namespace, key, prefix string) (*CacheKey, error) {
	fullKey := prefix + "platform:" + namespace + ":" + key
	return newCacheKey(prefix, namespace, key, LevelPlatform, fullKey, nil)
}

// CacheKeyForTenant builds a tenant-scoped key from ctx, which must carry a
// tenant identifier.
func CacheKeyForTenant(namespace, key, prefix string, ctx *Context) (*CacheKey, error) {
	if err := requireIdentifiers(ctx, LevelTenant); err != nil {
		return nil, err
	}
	return newCacheKey(prefix, namespace, key, LevelTenant, prefix+ctx.BuildCacheKey(namespace, key), ctx)
}

// CacheKeyForOrganization builds an organization-scoped key from ctx, which
// must carry tenant and organization identifiers.
func CacheKeyForOrganization(namespace, key, prefix string, ctx *Context) (*CacheKey, error) {
	if err := requireIdentifiers(ctx, LevelOrganization); err != nil {
		return nil, err
	}
	return newCacheKey(prefix, namespace, key, LevelOrganization, prefix+ctx.BuildCacheKey(namespace, key), ctx)
}

// CacheKeyForDepartment builds a department-scoped key from ctx, which must
// carry the full tenant/organization/department chain.
func CacheKeyForDepartment(namespace, key, prefix string, ctx *Context) (*CacheKey, error) {
	if err := requireIdentifiers(ctx, LevelDepartment); err != nil {
		return nil, err
	}
	return newCacheKey(prefix, namespace, key, LevelDepartment, prefix+ctx.BuildCacheKey(namespace, key), ctx)
}

// CacheKeyForUser builds a user-scoped key from ctx, which must carry a user
// identifier.
func CacheKeyForUser(namespace, key, prefix string, ctx *Context) (*CacheKey, error) {
	if err := requireIdentifiers(ctx, LevelUser); err != nil {
		return nil, err
	}
	return newCacheKey(prefix, namespace, key, LevelUser, prefix+ctx.BuildCacheKey(namespace, key), ctx)
}

// CacheKeyFromContext auto-detects the level from ctx and builds the key
// accordingly. This is the preferred general-purpose entry point.
func CacheKeyFromContext(namespace, key, prefix string, ctx *Context) (*CacheKey, error) {
	if ctx == nil {
		ctx = Platform()
	}
	return newCacheKey(prefix, namespace, key, ctx.Level(), prefix+ctx.BuildCacheKey(namespace, key), ctx)
}

// requireIdentifiers checks that ctx carries every identifier the target
// level names, without requiring ctx to actually be at that level.
func requireIdentifiers(ctx *Context, level Level) error {
	if ctx == nil {
		return errors.ErrInvalidCacheKey.WithDetail("missing", "context")
	}
	missing := func(field string) error {
		return errors.ErrInvalidCacheKey.
			WithDetail("level", level.String()).
			WithDetail("missing", field)
	}
	switch level {
	case LevelTenant:
		if !ctx.HasTenant() {
			return missing("tenant_id")
		}
	case LevelOrganization:
		if !ctx.HasTenant() {
			return missing("tenant_id")
		}
		if !ctx.HasOrganization() {
			return missing("organization_id")
		}
	case LevelDepartment:
		if !ctx.HasTenant() {
			return missing("tenant_id")
		}
		if !ctx.HasOrganization() {
			return missing("organization_id")
		}
		if !ctx.HasDepartment() {
			return missing("department_id")
		}
	case LevelUser:
		if !ctx.HasUser() {
			return missing("user_id")
		}
	}
	return nil
}

func newCacheKey(prefix, namespace, key string, level Level, fullKey string, ctx *Context) (*CacheKey, error) {
	if namespace == "" {
		return nil, errors.ErrInvalidCacheKey.WithDetail("missing", "namespace")
	}
	if key == "" {
		return nil, errors.ErrInvalidCacheKey.WithDetail("missing", "key")
	}
	if len(fullKey) > maxKeyLength {
		return nil, errors.ErrInvalidCacheKey.
			WithDetail("key", fullKey).
			WithDetail("length", len(fullKey)).
			WithDetail("max_length", maxKeyLength)
	}
	if !keyCharset.MatchString(fullKey) {
		return nil, errors.ErrInvalidCacheKey.
			WithDetail("key", fullKey).
			WithDetail("allowed", "A-Z a-z 0-9 _ : -")
	}
	return &CacheKey{
		prefix:    prefix,
		namespace: namespace,
		key:       key,
		level:     level,
		fullKey:   fullKey,
		ctx:       ctx,
	}, nil
}

// String returns the fully composed key.
func (k *CacheKey) String() string { return k.fullKey }

// Pattern returns a wildcard-suffixed form of the key for bulk SCAN/DEL,
// e.g. clearing every key under a tenant scope.
func (k *CacheKey) Pattern() string { return k.fullKey + "*" }

// Equal compares by the composed full key only.
func (k *CacheKey) Equal(other *CacheKey) bool {
	return other != nil && k.fullKey == other.fullKey
}

// Level returns the level the key was built for.
func (k *CacheKey) Level() Level { return k.level }

// Namespace returns the logical grouping segment.
func (k *CacheKey) Namespace() string { return k.namespace }

// Key returns the logical key name segment.
func (k *CacheKey) Key() string { return k.key }

// Prefix returns the configured key prefix.
func (k *CacheKey) Prefix() string { return k.prefix }

// Context returns the source isolation context, nil for keys built without
// one.
func (k *CacheKey) Context() *Context { return k.ctx }
