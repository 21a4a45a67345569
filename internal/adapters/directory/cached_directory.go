package directory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/providers"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/coursefeedback/backend/pkg/errors"
)

const (
	courseCachePrefix = "directory:course:"
	userCachePrefix   = "directory:user:"
)

// Upstream is what CachedDirectory decorates
type Upstream interface {
	providers.CourseDirectory
	providers.UserDirectory
}

// CachedDirectory puts an in-process LRU and an optional shared cache in
// front of the directory. Lookups go local, then shared, then upstream.
type CachedDirectory struct {
	upstream Upstream
	remote   providers.CacheProvider
	ttl      time.Duration
	courses  *expirable.LRU[string, string]
	users    *expirable.LRU[string, *entities.UserProfile]
}

var (
	_ providers.CourseDirectory = (*CachedDirectory)(nil)
	_ providers.UserDirectory   = (*CachedDirectory)(nil)
)

// NewCachedDirectory wraps upstream. remote may be nil.
func NewCachedDirectory(upstream Upstream, remote providers.CacheProvider, size int, ttl time.Duration) *CachedDirectory {
	if size <= 0 {
		size = 1024
	}
	return &CachedDirectory{
		upstream: upstream,
		remote:   remote,
		ttl:      ttl,
		courses:  expirable.NewLRU[string, string](size, nil, ttl),
		users:    expirable.NewLRU[string, *entities.UserProfile](size, nil, ttl),
	}
}

// GetDisplayName resolves a single course key
func (d *CachedDirectory) GetDisplayName(ctx context.Context, courseKey string) (string, error) {
	names, err := d.GetDisplayNames(ctx, []string{courseKey})
	if err != nil {
		return "", err
	}
	if name, ok := names[courseKey]; ok {
		return name, nil
	}
	return "", apperrors.NewNotFoundError("course " + courseKey + " not found in directory")
}

// GetProfile resolves a single user id
func (d *CachedDirectory) GetProfile(ctx context.Context, userID string) (*entities.UserProfile, error) {
	profiles, err := d.GetProfiles(ctx, []string{userID})
	if err != nil {
		return nil, err
	}
	if profile, ok := profiles[userID]; ok {
		return profile, nil
	}
	return nil, apperrors.NewNotFoundError("user " + userID + " not found in directory")
}

// GetDisplayNames resolves course keys through both cache tiers
func (d *CachedDirectory) GetDisplayNames(ctx context.Context, courseKeys []string) (map[string]string, error) {
	out := make(map[string]string, len(courseKeys))
	var missing []string

	for _, key := range courseKeys {
		if name, ok := d.courses.Get(key); ok {
			out[key] = name
			continue
		}
		missing = append(missing, key)
	}

	for key, raw := range d.fromRemote(ctx, courseCachePrefix, missing) {
		name := string(raw)
		out[key] = name
		d.courses.Add(key, name)
	}

	missing = absent(out, missing)
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := d.upstream.GetDisplayNames(ctx, missing)
	if err != nil {
		return out, err
	}
	for key, name := range fetched {
		out[key] = name
		d.courses.Add(key, name)
		d.toRemote(ctx, courseCachePrefix+key, []byte(name))
	}

	return out, nil
}

// GetProfiles resolves user ids through both cache tiers
func (d *CachedDirectory) GetProfiles(ctx context.Context, userIDs []string) (map[string]*entities.UserProfile, error) {
	out := make(map[string]*entities.UserProfile, len(userIDs))
	var missing []string

	for _, id := range userIDs {
		if profile, ok := d.users.Get(id); ok {
			out[id] = profile
			continue
		}
		missing = append(missing, id)
	}

	for id, raw := range d.fromRemote(ctx, userCachePrefix, missing) {
		var profile entities.UserProfile
		if err := json.Unmarshal(raw, &profile); err != nil {
			continue
		}
		out[id] = &profile
		d.users.Add(id, &profile)
	}

	missing = absent(out, missing)
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := d.upstream.GetProfiles(ctx, missing)
	if err != nil {
		return out, err
	}
	for id, profile := range fetched {
		out[id] = profile
		d.users.Add(id, profile)
		if data, err := json.Marshal(profile); err == nil {
			d.toRemote(ctx, userCachePrefix+id, data)
		}
	}

	return out, nil
}

// fromRemote returns cached values keyed by the unprefixed key. A shared
// cache outage is logged and treated as a miss.
func (d *CachedDirectory) fromRemote(ctx context.Context, prefix string, keys []string) map[string][]byte {
	if d.remote == nil || len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = prefix + key
	}

	values, err := d.remote.GetMulti(ctx, prefixed)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("directory cache read failed")
		return nil
	}

	out := make(map[string][]byte, len(values))
	for i, key := range keys {
		if raw, ok := values[prefixed[i]]; ok {
			out[key] = raw
		}
	}
	return out
}

func (d *CachedDirectory) toRemote(ctx context.Context, key string, value []byte) {
	if d.remote == nil {
		return
	}
	if err := d.remote.Set(ctx, key, value, int(d.ttl.Seconds())); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("key", key).Msg("directory cache write failed")
	}
}

func absent[V any](found map[string]V, keys []string) []string {
	var out []string
	for _, key := range keys {
		if _, ok := found[key]; !ok {
			out = append(out, key)
		}
	}
	return out
}
