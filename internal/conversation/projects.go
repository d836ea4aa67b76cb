package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/realty-inbox/pkg/logging"
	"github.com/wolfman30/realty-inbox/pkg/textnorm"
)

// Project is a real-estate development the tenant sells.
type Project struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ProjectLister lists a tenant's active projects.
type ProjectLister interface {
	List(ctx context.Context, tenantID uuid.UUID) ([]Project, error)
}

// MatchProjectName finds the project named in text, ignoring case and accents.
// When several names match, the longest wins so "Alfa Premium" beats "Alfa".
func MatchProjectName(text string, projects []Project) (Project, bool) {
	var (
		best  Project
		found bool
	)
	for _, p := range projects {
		if p.Name == "" || !textnorm.ContainsPhrase(text, p.Name) {
			continue
		}
		if !found || len([]rune(p.Name)) > len([]rune(best.Name)) {
			best = p
			found = true
		}
	}
	return best, found
}

const projectCacheKeyPrefix = "realty:projects:"

// ProjectCatalog reads projects from Postgres behind a Redis cache.
type ProjectCatalog struct {
	pool   PgxPool
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

var _ ProjectLister = (*ProjectCatalog)(nil)

// NewProjectCatalog creates the catalog. A nil redis client disables caching.
func NewProjectCatalog(pool PgxPool, rdb *redis.Client, ttl time.Duration, logger *logging.Logger) *ProjectCatalog {
	if pool == nil {
		panic("conversation: project catalog pool cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProjectCatalog{pool: pool, redis: rdb, ttl: ttl, logger: logger}
}

func projectCacheKey(tenantID uuid.UUID) string {
	return projectCacheKeyPrefix + tenantID.String()
}

// List returns active projects sorted by name. Cache failures fall through to
// the database.
func (c *ProjectCatalog) List(ctx context.Context, tenantID uuid.UUID) ([]Project, error) {
	if cached, ok := c.fromCache(ctx, tenantID); ok {
		return cached, nil
	}

	rows, err := c.pool.Query(ctx,
		`SELECT id, name FROM projects WHERE tenant_id = $1 AND active ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("conversation: list projects: %w", err)
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("conversation: scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: list projects: %w", err)
	}
	c.store(ctx, tenantID, projects)
	return projects, nil
}

// Invalidate drops the cached list for a tenant.
func (c *ProjectCatalog) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, projectCacheKey(tenantID)).Err(); err != nil {
		return fmt.Errorf("conversation: invalidate project cache: %w", err)
	}
	return nil
}

func (c *ProjectCatalog) fromCache(ctx context.Context, tenantID uuid.UUID) ([]Project, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, projectCacheKey(tenantID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("project cache read failed", "tenant_id", tenantID, "error", err)
		}
		return nil, false
	}
	var projects []Project
	if err := json.Unmarshal(data, &projects); err != nil {
		c.logger.Warn("project cache entry corrupt", "tenant_id", tenantID, "error", err)
		return nil, false
	}
	return projects, true
}

func (c *ProjectCatalog) store(ctx context.Context, tenantID uuid.UUID, projects []Project) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(projects)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, projectCacheKey(tenantID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("project cache write failed", "tenant_id", tenantID, "error", err)
	}
}
