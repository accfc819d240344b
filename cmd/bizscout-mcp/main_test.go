package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/use-agent/bizscout/models"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	var (
		mu    sync.Mutex
		polls int
	)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/lookups", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req models.LookupRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(models.LookupResponse{ID: "job-1", Status: "processing", Total: len(req.Queries)})
	})
	mux.HandleFunc("GET /api/v1/lookups/job-1", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		polls++
		n := polls
		mu.Unlock()
		resp := models.LookupStatusResponse{ID: "job-1", Status: "processing", Total: 2}
		if n > 1 {
			resp.Status = "partial"
			resp.Completed = 2
			resp.Results = []*models.LookupResult{
				{
					FetchOutcome: models.FetchOutcome{Query: "Green Fields", Success: true},
					Listings:     []models.Listing{{Name: "GREEN FIELDS CO-OPERATIVE INC.", Number: "1002003", Status: "Active"}},
				},
				{FetchOutcome: models.FetchOutcome{Query: "Acme", ErrorKind: models.ErrCodeSubmissionFailed, ErrorMessage: models.MsgSubmissionFailed}},
			}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) *mcp.CallToolResult {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want text", res.Content[0])
	}
	return tc.Text
}

func TestSearchBusinesses(t *testing.T) {
	pollInterval = 5 * time.Millisecond
	srv := fakeAPI(t)

	res := callTool(t, handleSearchBusinesses(srv.URL, "k"), map[string]any{
		"names": []any{"Green Fields", "Acme"},
	})
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}
	text := resultText(t, res)
	for _, want := range []string{
		"Lookup job-1: partial (2/2 completed)",
		"- GREEN FIELDS CO-OPERATIVE INC. (1002003) | Active",
		"Acme: FAILED (SUBMISSION_FAILED",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("result missing %q:\n%s", want, text)
		}
	}
}

func TestSearchBusinessesErrors(t *testing.T) {
	srv := fakeAPI(t)

	if res := callTool(t, handleSearchBusinesses(srv.URL, "k"), map[string]any{}); !res.IsError {
		t.Error("missing names should be a tool error")
	}
	res := callTool(t, handleSearchBusinesses(srv.URL, "wrong"), map[string]any{"names": []any{"Acme"}})
	if !res.IsError {
		t.Error("rejected API key should be a tool error")
	}
}
