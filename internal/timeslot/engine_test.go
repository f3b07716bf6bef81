package timeslot

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aweilerffp/marketing-machine-sub001/pkg/models"
)

// Monday 09:00 UTC.
var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type stubSource struct {
	samples    []models.PerformanceSample
	samplesErr error
	settings   *models.CompanySettings
}

func (s *stubSource) GetPerformanceSamples(ctx context.Context, companyID string) ([]models.PerformanceSample, error) {
	return s.samples, s.samplesErr
}

func (s *stubSource) GetCompanySettings(ctx context.Context, companyID string) (*models.CompanySettings, error) {
	if s.settings == nil {
		return nil, models.ErrNotFound("company", companyID)
	}
	return s.settings, nil
}

func newTestEngine(source *stubSource) *Engine {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	engine := NewEngine(DefaultConfig(), source, logger)
	engine.now = func() time.Time { return testNow }
	return engine
}

func TestIsReasonable(t *testing.T) {
	engine := newTestEngine(&stubSource{})

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"tomorrow mid-morning", testNow.Add(24 * time.Hour).Add(time.Hour), true},
		{"one hour in the past", testNow.Add(-time.Hour), false},
		{"exactly now", testNow, false},
		{"before business hours", time.Date(2025, 3, 11, 4, 0, 0, 0, time.UTC), false},
		{"after business hours", time.Date(2025, 3, 11, 20, 0, 0, 0, time.UTC), false},
		{"window start is inclusive", time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC), true},
		{"beyond the horizon", time.Date(2025, 4, 14, 10, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.IsReasonable(tt.t, time.UTC); got != tt.want {
				t.Errorf("IsReasonable(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestComputeOptimalTimePreferredPassthrough(t *testing.T) {
	engine := newTestEngine(&stubSource{
		samples: []models.PerformanceSample{{DayOfWeek: 2, HourOfDay: 14, AvgPerformance: 9.5, SampleCount: 40}},
	})

	preferred := time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC)
	got := engine.ComputeOptimalTime(context.Background(), "co-1", "post-1", &preferred, true)

	if !got.Equal(preferred) {
		t.Errorf("expected preferred time %v returned unchanged, got %v", preferred, got)
	}
}

func TestComputeOptimalTimeUnreasonablePreferredIsIgnored(t *testing.T) {
	engine := newTestEngine(&stubSource{})

	past := testNow.Add(-48 * time.Hour)
	got := engine.ComputeOptimalTime(context.Background(), "co-1", "post-1", &past, true)

	if !got.After(testNow) {
		t.Errorf("expected a future slot, got %v", got)
	}
	if got.Hour() != DefaultConfig().DefaultPublishHour {
		t.Errorf("expected default slot hour %d, got %v", DefaultConfig().DefaultPublishHour, got)
	}
}

func TestComputeOptimalTimeSmartDisabled(t *testing.T) {
	source := &stubSource{
		samples: []models.PerformanceSample{{DayOfWeek: 2, HourOfDay: 14, AvgPerformance: 9.5, SampleCount: 40}},
	}
	engine := newTestEngine(source)

	got := engine.ComputeOptimalTime(context.Background(), "co-1", "post-1", nil, false)

	// Today at 10:00 is an hour out, exactly the minimum lead time.
	want := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected default slot %v, got %v", want, got)
	}
}

func TestComputeOptimalTimeNoSamplesFallsBack(t *testing.T) {
	engine := newTestEngine(&stubSource{})

	got := engine.ComputeOptimalTime(context.Background(), "co-1", "post-1", nil, true)

	want := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected default slot %v, got %v", want, got)
	}
}

func TestComputeOptimalTimeSampleErrorFallsBack(t *testing.T) {
	engine := newTestEngine(&stubSource{samplesErr: errors.New("connection refused")})

	got := engine.ComputeOptimalTime(context.Background(), "co-1", "post-1", nil, true)

	if got.IsZero() {
		t.Fatal("engine must always return a timestamp")
	}
	if got.Hour() != DefaultConfig().DefaultPublishHour {
		t.Errorf("expected default slot hour, got %v", got)
	}
}

func TestComputeOptimalTimePicksBestBucket(t *testing.T) {
	engine := newTestEngine(&stubSource{
		samples: []models.PerformanceSample{
			{DayOfWeek: 1, HourOfDay: 9, AvgPerformance: 3.0, SampleCount: 50},
			{DayOfWeek: 2, HourOfDay: 14, AvgPerformance: 9.5, SampleCount: 40},
			{DayOfWeek: 4, HourOfDay: 11, AvgPerformance: 7.2, SampleCount: 60},
		},
	})

	got := engine.ComputeOptimalTime(context.Background(), "co-1", "post-1", nil, true)

	// Next Tuesday 14:00 after Monday 09:00.
	want := time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected best bucket projection %v, got %v", want, got)
	}
}

func TestComputeOptimalTimeTieBreaksOnSampleCount(t *testing.T) {
	engine := newTestEngine(&stubSource{
		samples: []models.PerformanceSample{
			{DayOfWeek: 3, HourOfDay: 16, AvgPerformance: 8.0, SampleCount: 10},
			{DayOfWeek: 2, HourOfDay: 14, AvgPerformance: 8.0, SampleCount: 90},
		},
	})

	got := engine.ComputeOptimalTime(context.Background(), "co-1", "post-1", nil, true)

	want := time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected higher-volume bucket %v, got %v", want, got)
	}
}

func TestComputeOptimalTimeClampsOffHoursBucket(t *testing.T) {
	engine := newTestEngine(&stubSource{
		samples: []models.PerformanceSample{
			{DayOfWeek: 2, HourOfDay: 3, AvgPerformance: 9.9, SampleCount: 12},
		},
	})

	got := engine.ComputeOptimalTime(context.Background(), "co-1", "post-1", nil, true)

	if got.Hour() != DefaultConfig().DefaultPublishHour {
		t.Errorf("off-hours bucket should clamp to default slot, got %v", got)
	}
}

func TestComputeOptimalTimeUsesCompanyTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}

	engine := newTestEngine(&stubSource{
		settings: &models.CompanySettings{CompanyID: "co-1", Timezone: "America/New_York"},
	})

	got := engine.ComputeOptimalTime(context.Background(), "co-1", "post-1", nil, false)

	if got.In(loc).Hour() != DefaultConfig().DefaultPublishHour {
		t.Errorf("expected default slot anchored in company timezone, got %v", got.In(loc))
	}
}

func TestBestBucketDeterministicOnFullTie(t *testing.T) {
	samples := []models.PerformanceSample{
		{DayOfWeek: 4, HourOfDay: 15, AvgPerformance: 5.0, SampleCount: 20},
		{DayOfWeek: 2, HourOfDay: 9, AvgPerformance: 5.0, SampleCount: 20},
		{DayOfWeek: 2, HourOfDay: 11, AvgPerformance: 5.0, SampleCount: 20},
	}

	best := bestBucket(samples)
	if best.DayOfWeek != 2 || best.HourOfDay != 9 {
		t.Errorf("expected earliest (day, hour) on full tie, got (%d, %d)", best.DayOfWeek, best.HourOfDay)
	}
}
