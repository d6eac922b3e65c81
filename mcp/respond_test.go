package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ka2n/litrev/config"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/morikuni/failure/v2"
)

// call runs a tool handler and decodes its JSON body.
func call(t *testing.T, def func() (mcp.Tool, server.ToolHandlerFunc), args map[string]any) (map[string]any, bool) {
	t.Helper()
	tool, h := def()
	var req mcp.CallToolRequest
	req.Params.Name = tool.Name
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("%s: protocol error %v", tool.Name, err)
	}
	return decode(t, res), res.IsError
}

func decode(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("got %d content blocks, want 1", len(res.Content))
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want mcp.TextContent", res.Content[0])
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(text.Text), &body); err != nil {
		t.Fatalf("body is not JSON: %v\n%s", err, text.Text)
	}
	return body
}

func errorOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error object in %v", body)
	}
	return e
}

func TestFail(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want map[string]any
	}{
		{
			name: "code with suggestion",
			err:  failure.New(config.ErrProjectNotFound, failure.Message("Project 'X' not found in config")),
			want: map[string]any{
				"code":       "PROJECT_NOT_FOUND",
				"message":    "Project 'X' not found in config",
				"suggestion": suggestions["PROJECT_NOT_FOUND"],
			},
		},
		{
			name: "code without suggestion",
			err:  failure.New(config.ErrInvalidConfig, failure.Message("bad yaml")),
			want: map[string]any{"code": "INVALID_CONFIG", "message": "bad yaml"},
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: map[string]any{"code": "INTERNAL_ERROR", "message": "boom"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := fail(tt.err)
			if err != nil {
				t.Fatal(err)
			}
			if !res.IsError {
				t.Error("IsError = false, want true")
			}
			body := decode(t, res)
			if body["success"] != false {
				t.Errorf("success = %v, want false", body["success"])
			}
			if diff := cmp.Diff(tt.want, errorOf(t, body)); diff != "" {
				t.Errorf("error mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConfirmation(t *testing.T) {
	res, _ := confirmation(
		failure.New(ErrInvalidArguments, failure.Message("confirm")),
		result{"item": map[string]any{"title": "A paper"}},
	)
	body := decode(t, res)
	if body["item"].(map[string]any)["title"] != "A paper" {
		t.Errorf("preview missing: %v", body)
	}
}

func TestOK(t *testing.T) {
	res, err := ok(result{"count": 2}.with(result{"query": "q"}))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"success": true, "count": float64(2), "query": "q"}
	if diff := cmp.Diff(want, decode(t, res)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestBind(t *testing.T) {
	type args struct {
		Query      string   `mapstructure:"query" validate:"required"`
		MaxResults int      `mapstructure:"max_results" validate:"gte=0"`
		Tags       []string `mapstructure:"tags"`
	}
	tests := []struct {
		name    string
		in      map[string]any
		want    args
		wantErr bool
	}{
		{
			name: "json numbers become ints",
			in:   map[string]any{"query": "attrition", "max_results": float64(5), "tags": []any{"a", "b"}},
			want: args{Query: "attrition", MaxResults: 5, Tags: []string{"a", "b"}},
		},
		{
			name: "numeric strings are accepted",
			in:   map[string]any{"query": "x", "max_results": "7"},
			want: args{Query: "x", MaxResults: 7},
		},
		{name: "missing required", in: map[string]any{"max_results": 3}, wantErr: true},
		{name: "negative", in: map[string]any{"query": "x", "max_results": -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req mcp.CallToolRequest
			req.Params.Arguments = tt.in
			var got args
			err := bind(context.Background(), req, &got)
			if tt.wantErr {
				if !failure.Is(err, ErrInvalidArguments) {
					t.Errorf("err = %v, want INVALID_ARGUMENTS", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("bind mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
