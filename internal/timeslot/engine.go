// Package timeslot computes the optimal future publish time for a post
// from historical performance buckets. The engine is pure computation over
// gateway-supplied data and never surfaces an error: every failure path
// degrades to a deterministic default slot.
package timeslot

import (
	"context"
	"time"

	"github.com/aweilerffp/marketing-machine-sub001/pkg/config"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/logging"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/models"
)

// Config holds the scheduling constraints.
type Config struct {
	BusinessHoursStart int           // inclusive local hour, default 8
	BusinessHoursEnd   int           // exclusive local hour, default 20
	DefaultPublishHour int           // anchor hour for the default slot, default 10
	MinLeadTime        time.Duration // minimum distance into the future for the default slot
	MaxHorizon         time.Duration // furthest a computed slot may be scheduled ahead
}

// DefaultConfig returns the standard scheduling constraints.
func DefaultConfig() Config {
	return Config{
		BusinessHoursStart: 8,
		BusinessHoursEnd:   20,
		DefaultPublishHour: 10,
		MinLeadTime:        time.Hour,
		MaxHorizon:         30 * 24 * time.Hour,
	}
}

// ConfigFromEnv reads the scheduling constraints from the environment.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.BusinessHoursStart = config.GetEnvInt("BUSINESS_HOURS_START", cfg.BusinessHoursStart)
	cfg.BusinessHoursEnd = config.GetEnvInt("BUSINESS_HOURS_END", cfg.BusinessHoursEnd)
	cfg.DefaultPublishHour = config.GetEnvInt("DEFAULT_PUBLISH_HOUR", cfg.DefaultPublishHour)
	cfg.MinLeadTime = config.GetEnvDuration("MIN_LEAD_TIME", cfg.MinLeadTime)
	cfg.MaxHorizon = time.Duration(config.GetEnvInt("MAX_SCHEDULE_HORIZON_DAYS", 30)) * 24 * time.Hour
	return cfg
}

// DataSource supplies the historical buckets and company settings the
// engine reads. Satisfied by the persistence gateway.
type DataSource interface {
	GetPerformanceSamples(ctx context.Context, companyID string) ([]models.PerformanceSample, error)
	GetCompanySettings(ctx context.Context, companyID string) (*models.CompanySettings, error)
}

// Engine computes optimal publish times.
type Engine struct {
	cfg    Config
	source DataSource
	logger logging.Logger
	now    func() time.Time
}

// NewEngine creates a heuristic engine over the given data source.
func NewEngine(cfg Config, source DataSource, logger logging.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// ComputeOptimalTime returns the publish timestamp for a post.
//
// A reasonable preferred time is returned unchanged: manual override takes
// precedence over the heuristic. With smart scheduling disabled, or when
// no usable samples exist, the default slot applies. Storage failures are
// absorbed here; the caller always gets a timestamp.
func (e *Engine) ComputeOptimalTime(ctx context.Context, companyID, postID string, preferred *time.Time, smart bool) time.Time {
	loc := e.companyLocation(ctx, companyID)

	if preferred != nil && e.IsReasonable(*preferred, loc) {
		return *preferred
	}

	if !smart {
		return e.defaultSlot(loc)
	}

	samples, err := e.source.GetPerformanceSamples(ctx, companyID)
	if err != nil {
		e.logger.WithError(err).WithFields(logging.Fields{
			"company_id": companyID,
			"post_id":    postID,
		}).Warn("Performance sample read failed, using default slot")
		return e.defaultSlot(loc)
	}
	if len(samples) == 0 {
		return e.defaultSlot(loc)
	}

	best := bestBucket(samples)
	candidate := e.projectBucket(best, loc)

	// Stale aggregates can point at a slot outside the window; clamp to
	// the default rather than schedule something unreasonable.
	if !e.IsReasonable(candidate, loc) {
		e.logger.WithFields(logging.Fields{
			"company_id": companyID,
			"post_id":    postID,
			"candidate":  candidate,
		}).Debug("Projected slot failed reasonableness check, using default slot")
		return e.defaultSlot(loc)
	}

	return candidate
}

// IsReasonable reports whether t is strictly in the future, lands inside
// the business-hour window in loc, and is within the scheduling horizon.
func (e *Engine) IsReasonable(t time.Time, loc *time.Location) bool {
	now := e.now()
	if !t.After(now) {
		return false
	}

	hour := t.In(loc).Hour()
	if hour < e.cfg.BusinessHoursStart || hour >= e.cfg.BusinessHoursEnd {
		return false
	}

	return t.Sub(now) <= e.cfg.MaxHorizon
}

// companyLocation resolves the company timezone, defaulting to UTC when
// settings are missing, unreadable, or carry an unknown zone name.
func (e *Engine) companyLocation(ctx context.Context, companyID string) *time.Location {
	settings, err := e.source.GetCompanySettings(ctx, companyID)
	if err != nil || settings.Timezone == "" {
		return time.UTC
	}

	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		e.logger.WithField("timezone", settings.Timezone).Debug("Unknown company timezone, using UTC")
		return time.UTC
	}
	return loc
}

// defaultSlot anchors to the default publish hour, advancing day by day
// until the slot is at least the minimum lead time away.
func (e *Engine) defaultSlot(loc *time.Location) time.Time {
	now := e.now().In(loc)
	slot := time.Date(now.Year(), now.Month(), now.Day(), e.cfg.DefaultPublishHour, 0, 0, 0, loc)
	for slot.Sub(e.now()) < e.cfg.MinLeadTime {
		slot = slot.AddDate(0, 0, 1)
	}
	return slot
}

// projectBucket maps a (day_of_week, hour) bucket onto its next future
// occurrence in loc.
func (e *Engine) projectBucket(b models.PerformanceSample, loc *time.Location) time.Time {
	now := e.now().In(loc)
	for d := 0; d <= 7; d++ {
		day := now.AddDate(0, 0, d)
		candidate := time.Date(day.Year(), day.Month(), day.Day(), b.HourOfDay, 0, 0, 0, loc)
		if int(candidate.Weekday()) == b.DayOfWeek && candidate.After(now) {
			return candidate
		}
	}
	// Unreachable for valid buckets, but keep the contract of always
	// returning a timestamp.
	return e.defaultSlot(loc)
}

// bestBucket selects the highest-performing bucket. Ties break on higher
// sample count, then on earliest (day, hour) so the choice is deterministic.
func bestBucket(samples []models.PerformanceSample) models.PerformanceSample {
	best := samples[0]
	for _, s := range samples[1:] {
		switch {
		case s.AvgPerformance > best.AvgPerformance:
			best = s
		case s.AvgPerformance == best.AvgPerformance && s.SampleCount > best.SampleCount:
			best = s
		case s.AvgPerformance == best.AvgPerformance && s.SampleCount == best.SampleCount &&
			(s.DayOfWeek < best.DayOfWeek || (s.DayOfWeek == best.DayOfWeek && s.HourOfDay < best.HourOfDay)):
			best = s
		}
	}
	return best
}
