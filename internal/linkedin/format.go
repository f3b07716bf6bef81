package linkedin

import "strings"

// Default share visibility for published posts.
const VisibilityPublic = "PUBLIC"

// FormatContent renders the post body for the platform: hashtags, when
// present, are appended after a blank line, space-joined.
func FormatContent(content string, hashtags []string) string {
	if len(hashtags) == 0 {
		return content
	}
	return content + "\n\n" + strings.Join(hashtags, " ")
}
