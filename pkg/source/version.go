package source

import (
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog/log"
)

const DefaultMinVersion = "1.5.0"

// the backend may be upgraded behind our back by a module update
const versionMaxAge = 24 * time.Hour

// versionCache remembers the last version reported by the backend. It is
// refetched when empty, below the minimum, older than maxAge, or on demand.
type versionCache struct {
	mu        sync.Mutex
	minimum   *semver.Version
	version   string
	fetchedAt time.Time
	maxAge    time.Duration
	now       func() time.Time
}

func newVersionCache(minVersion string) *versionCache {
	minimum, err := semver.NewVersion(NormalizeVersion(minVersion))
	if err != nil {
		minimum = semver.MustParse(DefaultMinVersion)
	}
	return &versionCache{minimum: minimum, maxAge: versionMaxAge, now: time.Now}
}

func (c *versionCache) get(force bool, fetch func() (string, error)) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.needsFetch(force) {
		return c.version
	}

	v, err := fetch()
	if err != nil {
		log.Error().Err(err).Msg("When getting source version")
		c.version = ""
		c.fetchedAt = time.Time{}
		return ""
	}

	c.version = NormalizeVersion(v)
	c.fetchedAt = c.now()
	if c.version != "" && !c.satisfies(c.version) {
		log.Warn().
			Str("version", c.version).
			Str("minimum", c.minimum.String()).
			Msg("Source version is older than the minimum supported one")
	}
	return c.version
}

// needsFetch must be called with mu held.
func (c *versionCache) needsFetch(force bool) bool {
	switch {
	case force, c.version == "", !c.satisfies(c.version):
		return true
	case c.maxAge > 0 && c.now().Sub(c.fetchedAt) > c.maxAge:
		log.Debug().Time("fetched_at", c.fetchedAt).Msg("Cached source version is stale")
		return true
	}
	return false
}

func (c *versionCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version = ""
	c.fetchedAt = time.Time{}
}

func (c *versionCache) satisfies(v string) bool {
	parsed, err := semver.NewVersion(NormalizeVersion(v))
	if err != nil {
		return false
	}
	return !parsed.LessThan(c.minimum)
}

// NormalizeVersion turns loose version strings ("1.5", "v2", "2.0.0.1")
// into x.y.z. "?" and "" mean unknown and yield "".
func NormalizeVersion(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" || v == "?" {
		return ""
	}

	parts := strings.Split(v, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	for i, p := range parts {
		end := 0
		for end < len(p) && p[end] >= '0' && p[end] <= '9' {
			end++
		}
		if end == 0 {
			parts[i] = "0"
		} else {
			parts[i] = strings.TrimLeft(p[:end], "0")
			if parts[i] == "" {
				parts[i] = "0"
			}
		}
	}
	return strings.Join(parts, ".")
}
