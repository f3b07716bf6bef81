// Package dispatcher drives due publish queue entries through the
// platform adapter. Multiple dispatcher processes may run against the
// same database: correctness rests on the lifecycle store's conditional
// claim, not on any in-process coordination.
package dispatcher

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/aweilerffp/marketing-machine-sub001/internal/lifecycle"
	"github.com/aweilerffp/marketing-machine-sub001/internal/linkedin"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/config"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/logging"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/models"
)

// PlatformAdapter is the publish contract a platform client satisfies.
// An adapter instance is bound to one (accessToken, companyID) pair and
// must be safe to discard after the job.
type PlatformAdapter interface {
	ValidateToken(ctx context.Context) (bool, error)
	PublishTextPost(ctx context.Context, formattedContent, visibility string) (*models.PublishResult, error)
	PublishImagePost(ctx context.Context, caption, imageURL, visibility string) (*models.PublishResult, error)
}

// AdapterFactory constructs a fresh stateless adapter for one job.
type AdapterFactory func(accessToken, companyID string) PlatformAdapter

// ClaimStore is the slice of the lifecycle store the dispatcher drives.
type ClaimStore interface {
	ClaimForPublishing(ctx context.Context, postID string) (*models.PublishJob, error)
	RecordResult(ctx context.Context, postID, companyID string, outcome lifecycle.Outcome) error
}

// Config holds dispatcher tuning.
type Config struct {
	Workers        int
	PollInterval   time.Duration
	PublishTimeout time.Duration
	Visibility     string
	BatchSize      int
}

// DefaultConfig returns dispatcher defaults.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		PollInterval:   30 * time.Second,
		PublishTimeout: 60 * time.Second,
		Visibility:     linkedin.VisibilityPublic,
		BatchSize:      16,
	}
}

// ConfigFromEnv reads dispatcher tuning from the environment.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.Workers = config.GetEnvInt("PUBLISH_WORKERS", cfg.Workers)
	cfg.PollInterval = config.GetEnvDuration("QUEUE_POLL_INTERVAL", cfg.PollInterval)
	cfg.PublishTimeout = config.GetEnvDuration("PUBLISH_TIMEOUT", cfg.PublishTimeout)
	cfg.Visibility = config.GetEnv("POST_VISIBILITY", cfg.Visibility)
	return cfg
}

// Metrics are the dispatcher's business metrics. All fields are optional.
type Metrics struct {
	Outcomes *prometheus.CounterVec   // labels: outcome
	Duration *prometheus.HistogramVec // labels: kind
	Queued   *prometheus.GaugeVec     // labels: state
}

// Dispatcher claims due queue entries and publishes them.
type Dispatcher struct {
	db      *sql.DB
	store   ClaimStore
	factory AdapterFactory
	cfg     Config
	logger  logging.Logger
	metrics Metrics
	wakeCh  chan struct{}
	stopCh  chan struct{}
}

// New creates a dispatcher.
func New(db *sql.DB, store ClaimStore, factory AdapterFactory, cfg Config, metrics Metrics, logger logging.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Dispatcher{
		db:      db,
		store:   store,
		factory: factory,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		wakeCh:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the claim loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.WithFields(logging.Fields{
		"workers":       d.cfg.Workers,
		"poll_interval": d.cfg.PollInterval,
	}).Info("Starting publish dispatcher")

	go d.run(ctx)
}

// Stop stops the claim loop.
func (d *Dispatcher) Stop() {
	d.logger.Info("Stopping publish dispatcher")
	close(d.stopCh)
}

// Wake triggers an immediate poll, used after publish-now requests so the
// expedited entry does not wait out the poll interval.
func (d *Dispatcher) Wake() {
	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
		case <-d.wakeCh:
		}
		d.dispatchDue(ctx)
	}
}

// dispatchDue claims and publishes every due entry, fanning work out to
// the worker pool. Per-post failures never stop the sweep.
func (d *Dispatcher) dispatchDue(ctx context.Context) {
	postIDs, err := d.dueEntries(ctx)
	if err != nil {
		d.logger.WithError(err).Error("Failed to read due queue entries")
		return
	}
	if len(postIDs) == 0 {
		return
	}

	if d.metrics.Queued != nil {
		d.metrics.Queued.WithLabelValues("due").Set(float64(len(postIDs)))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for _, postID := range postIDs {
		g.Go(func() error {
			d.process(gctx, postID)
			return nil
		})
	}
	_ = g.Wait()
}

// dueEntries lists queue entries whose due time has arrived.
func (d *Dispatcher) dueEntries(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT post_id FROM publish_queue
		WHERE due_at <= NOW()
		ORDER BY due_at
		LIMIT $1
	`, d.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var postIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		postIDs = append(postIDs, id)
	}
	return postIDs, rows.Err()
}

// process claims one post and drives it to a terminal state. A lost claim
// (another worker won, or the post was cancelled) is discarded silently.
func (d *Dispatcher) process(ctx context.Context, postID string) {
	job, err := d.store.ClaimForPublishing(ctx, postID)
	if err != nil {
		var notFound *models.NotFoundError
		if errors.As(err, &notFound) {
			d.logger.WithField("post_id", postID).Debug("Queue entry already claimed or cancelled, discarding")
			if d.metrics.Outcomes != nil {
				d.metrics.Outcomes.WithLabelValues("discarded").Inc()
			}
			return
		}
		d.logger.WithError(err).WithField("post_id", postID).Error("Failed to claim post for publishing")
		return
	}

	start := time.Now()
	result, pubErr := d.publish(ctx, *job)
	kind := "text"
	if job.ImageURL != "" {
		kind = "image"
	}
	if d.metrics.Duration != nil {
		d.metrics.Duration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}

	outcome := lifecycle.Outcome{Success: pubErr == nil, Result: result, Err: pubErr}
	if err := d.store.RecordResult(ctx, job.PostID, job.CompanyID, outcome); err != nil {
		d.logger.WithError(err).WithField("post_id", job.PostID).Error("Failed to record publish outcome")
		return
	}

	if pubErr != nil {
		d.logger.WithError(pubErr).WithFields(logging.Fields{
			"post_id":    job.PostID,
			"company_id": job.CompanyID,
		}).Warn("Publish failed")
		if d.metrics.Outcomes != nil {
			d.metrics.Outcomes.WithLabelValues("failed").Inc()
		}
		return
	}

	d.logger.WithFields(logging.Fields{
		"post_id":      job.PostID,
		"company_id":   job.CompanyID,
		"platform_id":  result.PlatformID,
		"platform_url": result.URL,
	}).Info("Post published")
	if d.metrics.Outcomes != nil {
		d.metrics.Outcomes.WithLabelValues("published").Inc()
	}
}

// publish runs the adapter flow for one claimed job: validate the
// credential, format the content, pick text vs image. Adapter panics are
// converted to publish errors so a misbehaving client cannot take down
// the worker loop.
func (d *Dispatcher) publish(ctx context.Context, job models.PublishJob) (result *models.PublishResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(logging.Fields{
				"post_id": job.PostID,
				"panic":   r,
			}).Error("Adapter panic during publish")
			result = nil
			err = &models.PublishError{Message: "internal adapter failure"}
		}
	}()

	publishCtx := ctx
	if d.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		publishCtx, cancel = context.WithTimeout(ctx, d.cfg.PublishTimeout)
		defer cancel()
	}

	adapter := d.factory(job.AccessToken, job.CompanyID)

	valid, err := adapter.ValidateToken(publishCtx)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, &models.AuthError{Message: "access token is invalid or expired"}
	}

	content := linkedin.FormatContent(job.Content, job.Hashtags)

	if job.ImageURL != "" {
		return adapter.PublishImagePost(publishCtx, content, job.ImageURL, d.cfg.Visibility)
	}
	return adapter.PublishTextPost(publishCtx, content, d.cfg.Visibility)
}
