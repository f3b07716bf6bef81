package kafka

import "time"

// Post lifecycle event types published to the firehose topic.
const (
	EventPostScheduled     = "post.scheduled"
	EventPostCancelled     = "post.cancelled"
	EventPostPublished     = "post.published"
	EventPostPublishFailed = "post.publish_failed"
)

// PostEvent is a typed lifecycle event emitted on terminal transitions
// and scheduling actions. Downstream analytics consume these to maintain
// the performance aggregates the heuristic engine reads.
type PostEvent struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	Timestamp     time.Time              `json:"timestamp"`
	Source        string                 `json:"source"`
	CompanyID     string                 `json:"company_id"`
	PostID        string                 `json:"post_id"`
	Data          map[string]interface{} `json:"data,omitempty"`
	SchemaVersion string                 `json:"schema_version"`
}
