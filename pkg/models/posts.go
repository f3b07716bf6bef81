package models

import "time"

// PostStatus is the lifecycle state of a post.
//
// draft → approved → scheduled → publishing → {published | failed}
// scheduled → cancelled, approved → cancelled
//
// draft and approved are produced by the generation/review collaborators;
// herald's entry point is approved.
type PostStatus string

const (
	PostStatusDraft      PostStatus = "draft"
	PostStatusApproved   PostStatus = "approved"
	PostStatusScheduled  PostStatus = "scheduled"
	PostStatusPublishing PostStatus = "publishing"
	PostStatusPublished  PostStatus = "published"
	PostStatusFailed     PostStatus = "failed"
	PostStatusCancelled  PostStatus = "cancelled"
)

// Terminal reports whether no further herald-driven transition exists.
func (s PostStatus) Terminal() bool {
	switch s {
	case PostStatusPublished, PostStatusFailed, PostStatusCancelled:
		return true
	}
	return false
}

// Post is a unit of generated content bound to one company. Content is
// already length-validated by the generation collaborator before it
// reaches herald.
type Post struct {
	ID               string     `json:"id"`
	CompanyID        string     `json:"company_id"`
	Content          string     `json:"content"`
	Hashtags         []string   `json:"hashtags"`
	SelectedImages   []string   `json:"selected_images,omitempty"`
	Status           PostStatus `json:"status"`
	ScheduledFor     *time.Time `json:"scheduled_for,omitempty"`
	ScheduledBy      string     `json:"scheduled_by,omitempty"`
	PlatformPostID   *string    `json:"platform_post_id,omitempty"`
	PlatformURL      *string    `json:"platform_url,omitempty"`
	Error            *string    `json:"error,omitempty"`
	PerformanceScore float64    `json:"performance_score"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// PerformanceSample is a pre-aggregated (day_of_week, hour_of_day) bucket
// over a rolling historical window per company. Read-only to herald.
type PerformanceSample struct {
	DayOfWeek      int     `json:"day_of_week"` // 0 = Sunday
	HourOfDay      int     `json:"hour_of_day"` // 0-23
	AvgPerformance float64 `json:"avg_performance"`
	SampleCount    int     `json:"sample_count"`
}

// CompanySettings carries the per-company publishing configuration read
// from the persistence gateway.
type CompanySettings struct {
	CompanyID   string `json:"company_id"`
	DisplayName string `json:"display_name"`
	Timezone    string `json:"timezone"`
	AccessToken string `json:"-"`
}

// ScheduleRequest is the transient input to Schedule.
type ScheduleRequest struct {
	PostID             string     `json:"post_id"`
	CompanyID          string     `json:"company_id"`
	ActorID            string     `json:"actor_id"`
	PreferredTime      *time.Time `json:"preferred_time,omitempty"`
	UseSmartScheduling bool       `json:"use_smart_scheduling"`
}

// ScheduleResult is returned by Schedule.
type ScheduleResult struct {
	PostID       string    `json:"post_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// PublishJob is an immutable snapshot of everything the platform adapter
// needs, captured at claim time so a publish never re-reads mutable post
// state mid-flight.
type PublishJob struct {
	PostID      string
	CompanyID   string
	CompanyName string
	Content     string
	Hashtags    []string
	ImageURL    string // empty when the post carries no selected image
	AccessToken string
}

// PublishResult is the platform's acknowledgement of a successful publish.
type PublishResult struct {
	PlatformID  string    `json:"platform_id"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	ImageRef    string    `json:"image_ref,omitempty"`
}
