package pubmed

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/morikuni/failure/v2"
)

// mockTransport answers each E-utility endpoint with a testdata file.
type mockTransport struct {
	t     *testing.T
	files map[string]string
	seen  []string
}

func mockHTTPClient(t *testing.T, files map[string]string) (*http.Client, *mockTransport) {
	t.Helper()
	tr := &mockTransport{t: t, files: files}
	return &http.Client{Transport: tr}, tr
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	endpoint := filepath.Base(req.URL.Path)
	m.seen = append(m.seen, endpoint+"?"+req.URL.RawQuery)
	name, ok := m.files[endpoint]
	if !ok {
		return &http.Response{StatusCode: http.StatusInternalServerError, Body: io.NopCloser(strings.NewReader("boom"))}, nil
	}
	content, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		m.t.Fatalf("Failed to read test data: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(content)),
	}, nil
}

func TestSearch(t *testing.T) {
	hc, tr := mockHTTPClient(t, map[string]string{
		"esearch.fcgi": "esearch.json",
		"efetch.fcgi":  "efetch.xml",
	})
	c := NewClient("", hc)

	got, err := c.Search(t.Context(), "measurement error", 100)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	want := []Paper{
		{
			PMID:     "111",
			Title:    "Effects of _in vivo_ calibration",
			Authors:  "Smith J, Doe",
			Year:     "2021",
			Journal:  "Statistics in Medicine",
			DOI:      "10.1002/sim.1",
			Abstract: "BACKGROUND: Measurement error biases estimates. METHODS: We used regression calibration.",
		},
		{
			PMID:     "222",
			Title:    "A simple title",
			Authors:  "Unknown",
			Year:     "2019",
			Journal:  "Epidemiology",
			Abstract: "Plain abstract.",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Search() mismatch (-want +got):\n%s", diff)
	}

	if !strings.Contains(tr.seen[0], "retmax=50") || !strings.Contains(tr.seen[0], "sort=relevance") {
		t.Errorf("esearch query = %q, want retmax capped at 50 and sorted by relevance", tr.seen[0])
	}
	if !strings.Contains(tr.seen[1], "id=111%2C222") {
		t.Errorf("efetch query = %q", tr.seen[1])
	}
}

func TestSearch_NoResults(t *testing.T) {
	hc, tr := mockHTTPClient(t, map[string]string{"esearch.fcgi": "esearch_empty.json"})
	got, err := NewClient("key", hc).Search(t.Context(), "nothing", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Search() = %v, want empty", got)
	}
	if len(tr.seen) != 1 || !strings.Contains(tr.seen[0], "api_key=key") || !strings.Contains(tr.seen[0], "retmax=10") {
		t.Errorf("requests = %v", tr.seen)
	}
}

func TestSearch_HTTPError(t *testing.T) {
	hc, _ := mockHTTPClient(t, map[string]string{})
	_, err := NewClient("", hc).Search(t.Context(), "x", 5)
	if !failure.Is(err, ErrPubMed) {
		t.Errorf("Search() error = %v, want %v", err, ErrPubMed)
	}
}
