package cache

import (
	"testing"
	"time"
)

func TestCacheEntry_IsFresh(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ttl := 10 * time.Minute

	tests := []struct {
		name      string
		updatedAt time.Time
		want      bool
	}{
		{
			name:      "just written",
			updatedAt: now,
			want:      true,
		},
		{
			name:      "one millisecond inside ttl",
			updatedAt: now.Add(-ttl + time.Millisecond),
			want:      true,
		},
		{
			name:      "exactly ttl old",
			updatedAt: now.Add(-ttl),
			want:      true,
		},
		{
			name:      "one millisecond past ttl",
			updatedAt: now.Add(-ttl - time.Millisecond),
			want:      false,
		},
		{
			name:      "an hour old",
			updatedAt: now.Add(-1 * time.Hour),
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{
				UpdatedAt: tt.updatedAt,
			}
			if got := entry.IsFresh(now, ttl); got != tt.want {
				t.Errorf("IsFresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheEntry_AgeAndExpiresAt(t *testing.T) {
	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	entry := &CacheEntry{UpdatedAt: updated}

	if got := entry.Age(updated.Add(3 * time.Minute)); got != 3*time.Minute {
		t.Errorf("Age() = %v, want 3m", got)
	}
	if got := entry.ExpiresAt(DefaultTTL); !got.Equal(updated.Add(10 * time.Minute)) {
		t.Errorf("ExpiresAt() = %v", got)
	}
}
