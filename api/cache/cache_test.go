package cache

import (
	"errors"
	"testing"
	"time"
)

type page struct {
	URL   string
	Lines []string
}

func TestGetOrSet(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[page]("test").WithDir(t.TempDir()).WithTTL(time.Hour)
	c.now = func() time.Time { return now }

	calls := 0
	fetch := func() (page, error) {
		calls++
		return page{URL: "https://doi.org/10.1/x", Lines: []string{"a", "b"}}, nil
	}

	for i := 0; i < 2; i++ {
		got, err := c.GetOrSet("https://doi.org/10.1/x", fetch, false)
		if err != nil {
			t.Fatal(err)
		}
		if got.URL != "https://doi.org/10.1/x" || len(got.Lines) != 2 {
			t.Errorf("got %+v", got)
		}
	}
	if calls != 1 {
		t.Errorf("fetch called %d times, want 1", calls)
	}

	if _, err := c.GetOrSet("https://doi.org/10.1/x", fetch, true); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("forced update: fetch called %d times, want 2", calls)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get("https://doi.org/10.1/x"); ok {
		t.Error("entry should be stale after the TTL")
	}
}

func TestGetOrSet_Error(t *testing.T) {
	c := New[string]("test").WithDir(t.TempDir())
	boom := errors.New("boom")
	if _, err := c.GetOrSet("k", func() (string, error) { return "", boom }, false); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("failed fetch must not be cached")
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://doi.org/10.1/x", "https___doi.org_10.1_x"},
		{"../../etc/passwd", "._._etc_passwd"},
		{"plain-key_1", "plain-key_1"},
	}
	for _, tt := range tests {
		if got := normalizeKey(tt.in); got != tt.want {
			t.Errorf("normalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
