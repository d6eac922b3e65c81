package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ka2n/litrev/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"
	"github.com/morikuni/failure/v2"
)

type ErrorCode string

const (
	ErrInvalidArguments ErrorCode = "INVALID_ARGUMENTS"
	ErrInternal         ErrorCode = "INTERNAL_ERROR"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}

var validate = validator.New()

// result is the JSON object returned by a tool on success.
type result map[string]any

type errorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// suggestions holds a hint for the agent per error code.
var suggestions = map[string]string{
	"PROJECT_NOT_FOUND":          "Check the project code in Literature/.litrev/config.yaml, or call zotero_list_projects.",
	"COLLECTION_NOT_CONFIGURED":  "Set zotero_collection_key for the project in config.yaml. zotero_create_collection returns a key.",
	"ZOTERO_AUTH_FAILED":         "Set ZOTERO_API_KEY and ZOTERO_USER_ID. Keys are created at https://www.zotero.org/settings/keys.",
	"ZOTERO_NOT_FOUND":           "Try zotero_search to locate the item, then pass its item_key.",
	"MISSING_METADATA":           "Provide a DOI, or at least a title.",
	"INVALID_STATUS":             "Use one of: needs_pdf, needs_notebooklm, complete.",
	"CONFIRMATION_REQUIRED":      "Show the item to the user and call again with confirm=true once they agree.",
	"DRIVE_PATH_NOT_FOUND":       "Set LITREV_DRIVE_PATH to the local Google Drive folder, then run litrev_hello.",
	"NO_DRIVE_PATH":              "Set LITREV_DRIVE_PATH to the local Google Drive folder, then run litrev_hello.",
	"NO_LITERATURE_PATH":         "Set LITREV_DRIVE_PATH to the local Google Drive folder, then run litrev_hello.",
	"INVALID_SOURCE":             "Use one of: consensus, notebooklm, synthesis, reading_notes.",
	"NO_EMBEDDINGS":              "Run embed_propositions for this project first.",
	"NO_OPENAI_KEY":              "Set OPENAI_API_KEY to enable embeddings and semantic search.",
	"NO_ANTHROPIC_KEY":           "Set ANTHROPIC_API_KEY, or pass extracted_data to skip the model call.",
	"SEMANTIC_SCHOLAR_NOT_FOUND": "Check the paper id. DOIs and PMID:x ids are accepted.",
	"PUBMED_ERROR":               "NCBI may be rate limiting. Wait a few seconds and retry, or set NCBI_API_KEY.",
	"SEMANTIC_SCHOLAR_ERROR":     "Semantic Scholar may be rate limiting. Wait and retry, or set SEMANTIC_SCHOLAR_API_KEY.",
	"PROPOSITION_NOT_FOUND":      "Use show_argument_map or query_propositions to find the proposition id.",
	"INVALID_ARGUMENTS":          "Check the tool input schema for required fields and types.",
	"DATABASE_ERROR":             "Check database.path in config.yaml and that the folder is writable.",
}

// errorCode returns the code string carried by err, or INTERNAL_ERROR.
func errorCode(err error) string {
	if c, ok := failure.CodeOf(err).(interface{ ErrorCode() string }); ok {
		return c.ErrorCode()
	}
	return string(ErrInternal)
}

func errorMessage(err error) string {
	if msg := failure.MessageOf(err); msg != "" {
		return msg.String()
	}
	return err.Error()
}

// fail renders err as a tool level error so the agent can read the code and
// suggestion. Protocol errors are reserved for transport problems.
func fail(err error) (*mcp.CallToolResult, error) {
	return failWith(err, nil)
}

// confirmation reports a CONFIRMATION_REQUIRED error together with a preview
// of what would be changed.
func confirmation(err error, preview result) (*mcp.CallToolResult, error) {
	return failWith(err, preview)
}

func failWith(err error, extra result) (*mcp.CallToolResult, error) {
	code := errorCode(err)
	resp := result{
		"success": false,
		"error": errorBody{
			Code:       code,
			Message:    errorMessage(err),
			Suggestion: suggestions[code],
		},
	}
	for k, v := range extra {
		resp[k] = v
	}
	b, merr := json.MarshalIndent(resp, "", "  ")
	if merr != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultError(string(b)), nil
}

// ok marks r successful and renders it as indented JSON.
func ok(r result) (*mcp.CallToolResult, error) {
	r["success"] = true
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fail(failure.Wrap(err, failure.WithCode(ErrInternal)))
	}
	return mcp.NewToolResultText(string(b)), nil
}

// fields flattens a struct into a result through its JSON encoding.
func fields(v any) result {
	b, err := json.Marshal(v)
	if err != nil {
		return result{}
	}
	r := result{}
	if err := json.Unmarshal(b, &r); err != nil {
		return result{}
	}
	return r
}

// with copies r and adds kv pairs.
func (r result) with(kv result) result {
	out := make(result, len(r)+len(kv))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range kv {
		out[k] = v
	}
	return out
}

// bind decodes the tool arguments into args and validates them.
func bind(ctx context.Context, req mcp.CallToolRequest, args any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Result:           args,
	})
	if err != nil {
		return failure.Wrap(err, failure.WithCode(ErrInternal))
	}
	if err := dec.Decode(req.Params.Arguments); err != nil {
		return failure.Wrap(err, failure.WithCode(ErrInvalidArguments), failure.Message(err.Error()))
	}
	if err := validate.StructCtx(ctx, args); err != nil {
		return failure.Wrap(err, failure.WithCode(ErrInvalidArguments), failure.Message(err.Error()))
	}
	return nil
}

// logged wraps a handler with request logging.
func logged(name string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := uuid.NewString()
		start := time.Now()
		log.Debug("tool call", "tool", name, "request_id", id)
		res, err := h(ctx, req)
		attrs := []any{"tool", name, "request_id", id, "elapsed", time.Since(start)}
		switch {
		case err != nil:
			log.Error("tool failed", append(attrs, "error", err)...)
		case res != nil && res.IsError:
			log.Warn("tool returned error", attrs...)
		default:
			log.Info("tool done", attrs...)
		}
		return res, err
	}
}
