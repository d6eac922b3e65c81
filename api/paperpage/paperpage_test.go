package paperpage

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ka2n/litrev/api/cache"
	"github.com/morikuni/failure/v2"
)

// mockHTTPClient creates a test client that returns the content of the specified file
func mockHTTPClient(t *testing.T, filename string, status int) (*http.Client, *[]string) {
	t.Helper()

	var content []byte
	if filename != "" {
		b, err := os.ReadFile(filepath.Join("testdata", filename))
		if err != nil {
			t.Fatalf("Failed to read test data: %v", err)
		}
		content = b
	}
	var seen []string
	return &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			seen = append(seen, req.URL.String())
			return &http.Response{
				StatusCode: status,
				Header:     http.Header{"Content-Type": []string{"text/html"}},
				Body:       io.NopCloser(bytes.NewReader(content)),
				Request:    req,
			}, nil
		}),
	}, &seen
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestResolveURL(t *testing.T) {
	tests := []struct {
		in          string
		want        string
		wantErrCode any
	}{
		{in: "10.1000/rc.2006", want: "https://doi.org/10.1000/rc.2006"},
		{in: "doi:10.1000/rc.2006", want: "https://doi.org/10.1000/rc.2006"},
		{in: "https://doi.org/10.1/x", want: "https://doi.org/10.1/x"},
		{in: "https://journal.example/article/1", want: "https://journal.example/article/1"},
		{in: "ftp://x.example/file", wantErrCode: ErrInvalidInput},
		{in: "not a url", wantErrCode: ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ResolveURL(tt.in)
			if tt.wantErrCode != nil {
				if !failure.Is(err, tt.wantErrCode) {
					t.Errorf("ResolveURL() error = %v, want %v", err, tt.wantErrCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveURL() error = %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("ResolveURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRead(t *testing.T) {
	hc, seen := mockHTTPClient(t, "landing.html", http.StatusOK)
	page, err := NewReader(hc).Read(t.Context(), "10.1000/rc.2006")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	want := Citation{
		Title:    "Regression calibration in practice",
		Authors:  []string{"Carroll, Raymond J.", "Stefanski, Leonard A."},
		Date:     "2006/05/01",
		Journal:  "Statistics in Medicine",
		DOI:      "10.1000/rc.2006",
		PDFURL:   "https://example.org/rc.pdf",
		Abstract: "We review regression calibration.",
	}
	if diff := cmp.Diff(want, page.Citation); diff != "" {
		t.Errorf("Citation mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(page.Content, "conditional expectation") {
		t.Errorf("Content missing article text: %q", page.Content)
	}
	if (*seen)[0] != "https://doi.org/10.1000/rc.2006" {
		t.Errorf("fetched %v", *seen)
	}
}

func TestRead_DublinCore(t *testing.T) {
	hc, _ := mockHTTPClient(t, "dublin_core.html", http.StatusOK)
	page, err := NewReader(hc).Read(t.Context(), "https://repo.example/item/1")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	want := Citation{Title: "Dublin core title", Authors: []string{"Author A"}, Date: "2019", DOI: "10.5555/dc.1"}
	if diff := cmp.Diff(want, page.Citation); diff != "" {
		t.Errorf("Citation mismatch (-want +got):\n%s", diff)
	}
}

func TestRead_HTTPError(t *testing.T) {
	hc, _ := mockHTTPClient(t, "", http.StatusForbidden)
	_, err := NewReader(hc).Read(t.Context(), "10.1/blocked")
	if !failure.Is(err, ErrFetch) {
		t.Errorf("Read() error = %v, want %v", err, ErrFetch)
	}
}

func TestRead_Cached(t *testing.T) {
	hc, seen := mockHTTPClient(t, "landing.html", http.StatusOK)
	r := NewReader(hc).WithCache(cache.New[Page]("pages").WithDir(t.TempDir()))

	for i := 0; i < 2; i++ {
		page, err := r.Read(t.Context(), "doi:10.1000/rc.2006")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if page.Citation.Title != "Regression calibration in practice" {
			t.Errorf("Title = %q", page.Citation.Title)
		}
	}
	if len(*seen) != 1 {
		t.Errorf("fetched %d times, want 1", len(*seen))
	}

	if _, err := r.Refresh(t.Context(), "10.1000/rc.2006"); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(*seen) != 2 {
		t.Errorf("Refresh should bypass the cache, fetched %d times", len(*seen))
	}
}
