package eric

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/morikuni/failure/v2"
)

type mockTransport struct {
	t        *testing.T
	status   int
	filename string
	err      error
	query    string
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.query = req.URL.RawQuery
	if m.err != nil {
		return nil, m.err
	}
	body := []byte("Service Unavailable")
	if m.filename != "" {
		b, err := os.ReadFile(filepath.Join("testdata", m.filename))
		if err != nil {
			m.t.Fatalf("Failed to read test data: %v", err)
		}
		body = b
	}
	return &http.Response{StatusCode: m.status, Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func TestSearch(t *testing.T) {
	tr := &mockTransport{t: t, status: http.StatusOK, filename: "search.json"}
	got, err := NewClient(&http.Client{Transport: tr}).Search(t.Context(), "peer tutoring", 80)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	year := 2018
	abstract := "A study of tutoring."
	want := []Paper{
		{
			ERICID:          "EJ100",
			Title:           "Peer tutoring in math",
			Authors:         "Lee, K., Park, S.",
			Year:            &year,
			Source:          "Journal of Ed",
			DOI:             "10.1/ej100",
			Abstract:        &abstract,
			PublicationType: "Journal Articles",
		},
		{ERICID: "ED200", Title: "Untitled", Authors: "Solo, H.", PublicationType: "Reports"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Search() mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(tr.query, "rows=50") || !strings.Contains(tr.query, "format=json") {
		t.Errorf("query = %q", tr.query)
	}
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name        string
		tr          *mockTransport
		wantErrCode any
	}{
		{name: "http status", tr: &mockTransport{status: http.StatusServiceUnavailable}, wantErrCode: ErrHTTP},
		{name: "transport", tr: &mockTransport{err: errors.New("dial tcp: refused")}, wantErrCode: ErrRequest},
		{name: "bad json", tr: &mockTransport{status: http.StatusOK}, wantErrCode: ErrERIC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.tr.t = t
			_, err := NewClient(&http.Client{Transport: tt.tr}).Search(t.Context(), "x", 5)
			if !failure.Is(err, tt.wantErrCode) {
				t.Errorf("Search() error = %v, want %v", err, tt.wantErrCode)
			}
		})
	}
}
