// Package lifecycle owns the authoritative post state machine and its
// transactional transitions. Every transition that touches scheduling also
// touches the publish queue inside the same transaction, so a post row and
// its dispatch entry cannot diverge.
package lifecycle

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/aweilerffp/marketing-machine-sub001/internal/timeslot"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/kafka"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/logging"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/models"
)

// Outcome is the result of a publish attempt, recorded against a
// publishing post.
type Outcome struct {
	Success bool
	Result  *models.PublishResult
	Err     error
}

// Store drives post lifecycle transitions against the transactional store.
type Store struct {
	db     *sql.DB
	engine *timeslot.Engine
	events *kafka.Producer // nil disables event emission
	logger logging.Logger
	now    func() time.Time
}

// NewStore creates a lifecycle store. events may be nil.
func NewStore(db *sql.DB, engine *timeslot.Engine, events *kafka.Producer, logger logging.Logger) *Store {
	return &Store{
		db:     db,
		engine: engine,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// Schedule transitions an approved post to scheduled. The optimal time is
// computed before the transaction opens (the heuristic read is blocking
// I/O and must not run under a row lock); the conditional update then
// guards against a racing transition. Row update and queue insert commit
// together.
func (s *Store) Schedule(ctx context.Context, req models.ScheduleRequest) (*models.ScheduleResult, error) {
	status, err := s.postStatus(ctx, req.PostID, req.CompanyID)
	if err != nil {
		return nil, err
	}
	if status != models.PostStatusApproved {
		return nil, models.ErrInvalidState("post must be approved before scheduling")
	}

	scheduledFor := s.engine.ComputeOptimalTime(ctx, req.CompanyID, req.PostID, req.PreferredTime, req.UseSmartScheduling)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &models.StorageError{Op: "schedule", Err: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE posts
		SET status = 'scheduled', scheduled_for = $1, scheduled_by = $2, updated_at = NOW()
		WHERE id = $3 AND company_id = $4 AND status = 'approved'
	`, scheduledFor, req.ActorID, req.PostID, req.CompanyID)
	if err != nil {
		return nil, &models.StorageError{Op: "schedule", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost a race since the precondition check.
		return nil, models.ErrInvalidState("post must be approved before scheduling")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO publish_queue (id, post_id, company_id, due_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.New().String(), req.PostID, req.CompanyID, scheduledFor)
	if err != nil {
		return nil, &models.StorageError{Op: "enqueue dispatch entry", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &models.StorageError{Op: "schedule", Err: err}
	}

	s.emit(ctx, kafka.EventPostScheduled, req.CompanyID, req.PostID, map[string]interface{}{
		"scheduled_for": scheduledFor,
		"scheduled_by":  req.ActorID,
	})

	s.logger.WithFields(logging.Fields{
		"post_id":       req.PostID,
		"company_id":    req.CompanyID,
		"scheduled_for": scheduledFor,
		"scheduled_by":  req.ActorID,
	}).Info("Post scheduled")

	return &models.ScheduleResult{PostID: req.PostID, ScheduledFor: scheduledFor}, nil
}

// Cancel transitions a scheduled post to cancelled and removes its
// dispatch entry. Cancellation races the dispatcher: once a worker has
// claimed the post the window is closed and the caller gets an
// InvalidStateError.
func (s *Store) Cancel(ctx context.Context, postID, companyID, actorID string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", &models.StorageError{Op: "cancel", Err: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE posts
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND status = 'scheduled'
	`, postID, companyID)
	if err != nil {
		return "", &models.StorageError{Op: "cancel", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, serr := s.postStatus(ctx, postID, companyID); serr != nil {
			return "", serr
		}
		return "", models.ErrInvalidState("only scheduled posts can be cancelled")
	}

	// Idempotent: the entry may already be consumed.
	if _, err := tx.ExecContext(ctx, `DELETE FROM publish_queue WHERE post_id = $1`, postID); err != nil {
		return "", &models.StorageError{Op: "dequeue dispatch entry", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return "", &models.StorageError{Op: "cancel", Err: err}
	}

	s.emit(ctx, kafka.EventPostCancelled, companyID, postID, map[string]interface{}{
		"cancelled_by": actorID,
	})

	s.logger.WithFields(logging.Fields{
		"post_id":    postID,
		"company_id": companyID,
		"actor_id":   actorID,
	}).Info("Post cancelled")

	return "post cancelled", nil
}

// ClaimForPublishing atomically transitions scheduled → publishing and
// returns the job snapshot. The conditional update guarantees exactly one
// concurrent caller wins; everyone else gets a NotFoundError.
func (s *Store) ClaimForPublishing(ctx context.Context, postID string) (*models.PublishJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &models.StorageError{Op: "claim", Err: err}
	}
	defer tx.Rollback()

	job := models.PublishJob{PostID: postID}
	var hashtags, images pq.StringArray

	err = tx.QueryRowContext(ctx, `
		UPDATE posts
		SET status = 'publishing', updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'
		RETURNING company_id, content, hashtags, selected_images
	`, postID).Scan(&job.CompanyID, &job.Content, &hashtags, &images)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound("claimable post", postID)
	}
	if err != nil {
		return nil, &models.StorageError{Op: "claim", Err: err}
	}

	job.Hashtags = []string(hashtags)
	if len(images) > 0 {
		job.ImageURL = images[0]
	}

	err = tx.QueryRowContext(ctx, `
		SELECT display_name, access_token FROM companies WHERE id = $1
	`, job.CompanyID).Scan(&job.CompanyName, &job.AccessToken)
	if err != nil {
		return nil, &models.StorageError{Op: "claim company settings", Err: err}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM publish_queue WHERE post_id = $1`, postID); err != nil {
		return nil, &models.StorageError{Op: "consume dispatch entry", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &models.StorageError{Op: "claim", Err: err}
	}

	return &job, nil
}

// RecordResult moves a publishing post to its terminal state.
func (s *Store) RecordResult(ctx context.Context, postID, companyID string, outcome Outcome) error {
	if outcome.Success {
		res, err := s.db.ExecContext(ctx, `
			UPDATE posts
			SET status = 'published', platform_post_id = $1, platform_url = $2,
			    published_at = $3, error = NULL, updated_at = NOW()
			WHERE id = $4 AND status = 'publishing'
		`, outcome.Result.PlatformID, outcome.Result.URL, outcome.Result.PublishedAt, postID)
		if err != nil {
			return &models.StorageError{Op: "record publish success", Err: err}
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return models.ErrInvalidState("post %s is not publishing", postID)
		}

		s.emit(ctx, kafka.EventPostPublished, companyID, postID, map[string]interface{}{
			"platform_post_id": outcome.Result.PlatformID,
			"platform_url":     outcome.Result.URL,
		})
		return nil
	}

	errMsg := "publish failed"
	if outcome.Err != nil {
		errMsg = outcome.Err.Error()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET status = 'failed', error = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'publishing'
	`, errMsg, postID)
	if err != nil {
		return &models.StorageError{Op: "record publish failure", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrInvalidState("post %s is not publishing", postID)
	}

	s.emit(ctx, kafka.EventPostPublishFailed, companyID, postID, map[string]interface{}{
		"error": errMsg,
	})
	return nil
}

// PublishNow expedites a post past the delay. An approved post is
// scheduled due immediately; a scheduled post has its dispatch entry
// pulled forward. The dispatcher claims it on its next poll.
func (s *Store) PublishNow(ctx context.Context, postID, companyID, actorID string) error {
	status, err := s.postStatus(ctx, postID, companyID)
	if err != nil {
		return err
	}

	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &models.StorageError{Op: "publish now", Err: err}
	}
	defer tx.Rollback()

	switch status {
	case models.PostStatusApproved:
		res, err := tx.ExecContext(ctx, `
			UPDATE posts
			SET status = 'scheduled', scheduled_for = $1, scheduled_by = $2, updated_at = NOW()
			WHERE id = $3 AND company_id = $4 AND status = 'approved'
		`, now, actorID, postID, companyID)
		if err != nil {
			return &models.StorageError{Op: "publish now", Err: err}
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return models.ErrInvalidState("post must be approved or scheduled to publish now")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO publish_queue (id, post_id, company_id, due_at)
			VALUES ($1, $2, $3, $4)
		`, uuid.New().String(), postID, companyID, now); err != nil {
			return &models.StorageError{Op: "enqueue dispatch entry", Err: err}
		}

	case models.PostStatusScheduled:
		if _, err := tx.ExecContext(ctx, `
			UPDATE posts SET scheduled_for = $1, updated_at = NOW()
			WHERE id = $2 AND company_id = $3 AND status = 'scheduled'
		`, now, postID, companyID); err != nil {
			return &models.StorageError{Op: "publish now", Err: err}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE publish_queue SET due_at = $1 WHERE post_id = $2
		`, now, postID); err != nil {
			return &models.StorageError{Op: "expedite dispatch entry", Err: err}
		}

	default:
		return models.ErrInvalidState("post must be approved or scheduled to publish now")
	}

	if err := tx.Commit(); err != nil {
		return &models.StorageError{Op: "publish now", Err: err}
	}

	s.logger.WithFields(logging.Fields{
		"post_id":    postID,
		"company_id": companyID,
		"actor_id":   actorID,
	}).Info("Post expedited for immediate publish")

	return nil
}

// Delete removes a post in any non-published state. The dispatch entry is
// removed in the same transaction.
func (s *Store) Delete(ctx context.Context, postID, companyID string) error {
	status, err := s.postStatus(ctx, postID, companyID)
	if err != nil {
		return err
	}
	if status == models.PostStatusPublished {
		return models.ErrInvalidState("cannot delete a published post")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &models.StorageError{Op: "delete", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM publish_queue WHERE post_id = $1`, postID); err != nil {
		return &models.StorageError{Op: "delete dispatch entry", Err: err}
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM posts WHERE id = $1 AND company_id = $2 AND status <> 'published'
	`, postID, companyID)
	if err != nil {
		return &models.StorageError{Op: "delete", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrInvalidState("cannot delete a published post")
	}

	return tx.Commit()
}

// postStatus reads the current status, mapping missing rows to NotFound.
func (s *Store) postStatus(ctx context.Context, postID, companyID string) (models.PostStatus, error) {
	var status models.PostStatus
	err := s.db.QueryRowContext(ctx, `
		SELECT status FROM posts WHERE id = $1 AND company_id = $2
	`, postID, companyID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", models.ErrNotFound("post", postID)
	}
	if err != nil {
		return "", &models.StorageError{Op: "get post status", Err: err}
	}
	return status, nil
}

// emit publishes a lifecycle event, best effort.
func (s *Store) emit(ctx context.Context, eventType, companyID, postID string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishPostEvent(ctx, eventType, companyID, postID, data); err != nil {
		s.logger.WithError(err).WithFields(logging.Fields{
			"event_type": eventType,
			"post_id":    postID,
		}).Warn("Failed to publish lifecycle event")
	}
}
