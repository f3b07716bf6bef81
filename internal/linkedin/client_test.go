package linkedin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aweilerffp/marketing-machine-sub001/pkg/models"
)

func TestFormatContent(t *testing.T) {
	got := FormatContent("Test LinkedIn post content", []string{"#Test", "#Marketing"})
	want := "Test LinkedIn post content\n\n#Test #Marketing"
	if got != want {
		t.Errorf("FormatContent = %q, want %q", got, want)
	}
}

func TestFormatContentNoHashtags(t *testing.T) {
	content := "Just the body, nothing else."
	if got := FormatContent(content, nil); got != content {
		t.Errorf("content without hashtags must pass through unchanged, got %q", got)
	}
}

func newTestClient(serverURL string) *Client {
	return NewClient(Config{
		BaseURL:     serverURL,
		AccessToken: "token-abc",
		CompanyID:   "12345",
	})
}

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		want    bool
		wantErr bool
	}{
		{"valid token", http.StatusOK, true, false},
		{"expired token", http.StatusUnauthorized, false, false},
		{"revoked token", http.StatusForbidden, false, false},
		{"platform outage", http.StatusInternalServerError, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v2/userinfo" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer token-abc" {
					t.Errorf("unexpected authorization header %q", got)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			got, err := newTestClient(srv.URL).ValidateToken(t.Context())
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateToken error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ValidateToken = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPublishTextPost(t *testing.T) {
	var captured ugcPost
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/ugcPosts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
		w.Header().Set("X-RestLi-Id", "urn:li:share:42")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).PublishTextPost(t.Context(), "Launch day!\n\n#launch", "PUBLIC")
	if err != nil {
		t.Fatalf("PublishTextPost returned error: %v", err)
	}

	if result.PlatformID != "urn:li:share:42" {
		t.Errorf("unexpected platform id %q", result.PlatformID)
	}
	if result.URL != "https://www.linkedin.com/feed/update/urn:li:share:42" {
		t.Errorf("unexpected post url %q", result.URL)
	}
	if result.PublishedAt.IsZero() {
		t.Error("expected a publish timestamp")
	}

	if captured.Author != "urn:li:organization:12345" {
		t.Errorf("unexpected author %q", captured.Author)
	}
	share := captured.SpecificContent["com.linkedin.ugc.ShareContent"]
	if share.ShareMediaCategory != "NONE" {
		t.Errorf("text post must use media category NONE, got %q", share.ShareMediaCategory)
	}
	if share.ShareCommentary.Text != "Launch day!\n\n#launch" {
		t.Errorf("unexpected commentary %q", share.ShareCommentary.Text)
	}
}

func TestPublishImagePost(t *testing.T) {
	var captured ugcPost
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "urn:li:share:43"})
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).PublishImagePost(t.Context(), "caption", "https://cdn.example.com/a.png", "PUBLIC")
	if err != nil {
		t.Fatalf("PublishImagePost returned error: %v", err)
	}

	// No X-RestLi-Id header: the id comes from the response body.
	if result.PlatformID != "urn:li:share:43" {
		t.Errorf("unexpected platform id %q", result.PlatformID)
	}
	if result.ImageRef != "https://cdn.example.com/a.png" {
		t.Errorf("unexpected image ref %q", result.ImageRef)
	}

	share := captured.SpecificContent["com.linkedin.ugc.ShareContent"]
	if share.ShareMediaCategory != "IMAGE" {
		t.Errorf("image post must use media category IMAGE, got %q", share.ShareMediaCategory)
	}
	if len(share.Media) != 1 || share.Media[0].OriginalURL != "https://cdn.example.com/a.png" {
		t.Errorf("unexpected media block %+v", share.Media)
	}
}

func TestPublishRejectedTokenIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).PublishTextPost(t.Context(), "content", "PUBLIC")

	var authErr *models.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestPublishPlatformMessageSurvivesVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"message": "Content exceeds maximum length"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).PublishTextPost(t.Context(), "content", "PUBLIC")

	var publishErr *models.PublishError
	if !errors.As(err, &publishErr) {
		t.Fatalf("expected PublishError, got %v", err)
	}
	if publishErr.Message != "Content exceeds maximum length" {
		t.Errorf("platform message must survive verbatim, got %q", publishErr.Message)
	}
}

func TestPublishNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream timeout"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).PublishTextPost(t.Context(), "content", "PUBLIC")

	var publishErr *models.PublishError
	if !errors.As(err, &publishErr) {
		t.Fatalf("expected PublishError, got %v", err)
	}
	if publishErr.Message != "platform returned status 502: upstream timeout" {
		t.Errorf("unexpected message %q", publishErr.Message)
	}
}
