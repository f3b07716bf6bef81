// Package gateway is the persistence surface herald reads rows through:
// posts, per-company performance aggregates, and company settings.
// Performance aggregates are served through a short-TTL Redis cache since
// they only change when the analytics collaborator refreshes its rolling
// window; company settings carry credentials and are always read straight
// from Postgres.
package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"github.com/aweilerffp/marketing-machine-sub001/pkg/logging"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/models"
)

const samplesCacheTTL = 5 * time.Minute

// Gateway provides row access for herald's read paths.
type Gateway struct {
	db     *sql.DB
	cache  goredis.UniversalClient // nil disables caching
	logger logging.Logger
}

// New creates a gateway. cache may be nil.
func New(db *sql.DB, cache goredis.UniversalClient, logger logging.Logger) *Gateway {
	return &Gateway{db: db, cache: cache, logger: logger}
}

// GetPost fetches a post scoped to its company.
func (g *Gateway) GetPost(ctx context.Context, postID, companyID string) (*models.Post, error) {
	var post models.Post
	var hashtags, images pq.StringArray

	err := g.db.QueryRowContext(ctx, `
		SELECT id, company_id, content, hashtags, selected_images, status,
		       scheduled_for, scheduled_by, platform_post_id, platform_url,
		       error, performance_score, published_at, created_at, updated_at
		FROM posts
		WHERE id = $1 AND company_id = $2
	`, postID, companyID).Scan(
		&post.ID, &post.CompanyID, &post.Content, &hashtags, &images, &post.Status,
		&post.ScheduledFor, &post.ScheduledBy, &post.PlatformPostID, &post.PlatformURL,
		&post.Error, &post.PerformanceScore, &post.PublishedAt, &post.CreatedAt, &post.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound("post", postID)
	}
	if err != nil {
		return nil, &models.StorageError{Op: "get post", Err: err}
	}

	post.Hashtags = []string(hashtags)
	post.SelectedImages = []string(images)
	return &post, nil
}

// GetPerformanceSamples returns the pre-aggregated (day, hour) buckets for
// a company, cache first. A cache failure falls through to Postgres.
func (g *Gateway) GetPerformanceSamples(ctx context.Context, companyID string) ([]models.PerformanceSample, error) {
	cacheKey := "herald:samples:" + companyID

	if g.cache != nil {
		if raw, err := g.cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var samples []models.PerformanceSample
			if err := json.Unmarshal(raw, &samples); err == nil {
				return samples, nil
			}
		} else if err != goredis.Nil {
			g.logger.WithError(err).WithField("company_id", companyID).Debug("Sample cache read failed")
		}
	}

	rows, err := g.db.QueryContext(ctx, `
		SELECT day_of_week, hour_of_day, avg_performance, sample_count
		FROM post_performance_buckets
		WHERE company_id = $1
		ORDER BY day_of_week, hour_of_day
	`, companyID)
	if err != nil {
		return nil, &models.StorageError{Op: "get performance samples", Err: err}
	}
	defer rows.Close()

	var samples []models.PerformanceSample
	for rows.Next() {
		var s models.PerformanceSample
		if err := rows.Scan(&s.DayOfWeek, &s.HourOfDay, &s.AvgPerformance, &s.SampleCount); err != nil {
			return nil, &models.StorageError{Op: "scan performance sample", Err: err}
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StorageError{Op: "get performance samples", Err: err}
	}

	if g.cache != nil && len(samples) > 0 {
		if raw, err := json.Marshal(samples); err == nil {
			if err := g.cache.Set(ctx, cacheKey, raw, samplesCacheTTL).Err(); err != nil {
				g.logger.WithError(err).WithField("company_id", companyID).Debug("Sample cache write failed")
			}
		}
	}

	return samples, nil
}

// GetCompanySettings reads the company's publishing settings. Credentials
// are involved, so this path never touches the cache.
func (g *Gateway) GetCompanySettings(ctx context.Context, companyID string) (*models.CompanySettings, error) {
	settings := models.CompanySettings{CompanyID: companyID}

	err := g.db.QueryRowContext(ctx, `
		SELECT display_name, timezone, access_token
		FROM companies
		WHERE id = $1
	`, companyID).Scan(&settings.DisplayName, &settings.Timezone, &settings.AccessToken)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound("company", companyID)
	}
	if err != nil {
		return nil, &models.StorageError{Op: "get company settings", Err: err}
	}

	return &settings, nil
}
