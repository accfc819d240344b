package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/bizscout/models"
)

// pollInterval is how often a lookup job is polled.
var pollInterval = 2 * time.Second

func main() {
	apiURL := os.Getenv("BIZSCOUT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("BIZSCOUT_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "BIZSCOUT_API_KEY is required")
		os.Exit(1)
	}

	if err := server.ServeStdio(newServer(apiURL, apiKey)); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(apiURL, apiKey string) *server.MCPServer {
	s := server.NewMCPServer(
		"bizscout",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	searchTool := mcp.NewTool("search_businesses",
		mcp.WithDescription("Search the Ontario business registry for one or more business names. Runs a headless browser per name and returns the registered entities found for each, with name, number, type and status."),
		mcp.WithArray("names",
			mcp.Required(),
			mcp.Description("Business names to look up"),
		),
	)
	s.AddTool(searchTool, handleSearchBusinesses(apiURL, apiKey))

	getTool := mcp.NewTool("get_lookup",
		mcp.WithDescription("Fetch the results of an earlier lookup job by id."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The lookup job id"),
		),
	)
	s.AddTool(getTool, handleGetLookup(apiURL, apiKey))

	return s
}

// apiPost sends a POST request to the bizscout API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, apiError(resp.StatusCode, b)
	}
	return b, nil
}

func apiGet(ctx context.Context, client *http.Client, apiURL, apiKey, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, apiError(resp.StatusCode, b)
	}
	return b, nil
}

func apiError(status int, body []byte) error {
	var er models.ErrorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != nil {
		return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
	}
	return fmt.Errorf("API returned status %d", status)
}

// pollJobCompletion polls a job endpoint until status is no longer "processing" or context is cancelled.
func pollJobCompletion(ctx context.Context, client *http.Client, apiURL, apiKey, endpoint string) (*models.LookupStatusResponse, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			body, err := apiGet(ctx, client, apiURL, apiKey, endpoint)
			if err != nil {
				return nil, fmt.Errorf("poll request failed: %w", err)
			}
			var status models.LookupStatusResponse
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if status.Status != "processing" {
				return &status, nil
			}
		}
	}
}

func handleSearchBusinesses(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 60 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names, err := request.RequireStringSlice("names")
		if err != nil || len(names) == 0 {
			return mcp.NewToolResultError("names is required and must be a non-empty array of strings"), nil
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/lookups", models.LookupRequest{Queries: names})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("lookup request failed: %v", err)), nil
		}
		var created models.LookupResponse
		if err := json.Unmarshal(respBody, &created); err != nil || created.ID == "" {
			return mcp.NewToolResultError("lookup job creation failed"), nil
		}

		status, err := pollJobCompletion(ctx, client, apiURL, apiKey, "/api/v1/lookups/"+created.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling lookup job failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatLookup(status)), nil
	}
}

func handleGetLookup(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		body, err := apiGet(ctx, client, apiURL, apiKey, "/api/v1/lookups/"+id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("lookup request failed: %v", err)), nil
		}
		var status models.LookupStatusResponse
		if err := json.Unmarshal(body, &status); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse lookup: %v", err)), nil
		}
		return mcp.NewToolResultText(formatLookup(&status)), nil
	}
}

func formatLookup(status *models.LookupStatusResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Lookup %s: %s (%d/%d completed)\n", status.ID, status.Status, status.Completed, status.Total)
	if status.Error != nil {
		fmt.Fprintf(&sb, "Error: %s: %s\n", status.Error.Code, status.Error.Message)
	}

	for _, r := range status.Results {
		sb.WriteString("\n")
		if !r.Success {
			fmt.Fprintf(&sb, "--- %s: FAILED (%s: %s) ---\n", r.Query, r.ErrorKind, r.ErrorMessage)
			continue
		}
		fmt.Fprintf(&sb, "--- %s: %d result(s) ---\n", r.Query, len(r.Listings))
		for _, l := range r.Listings {
			sb.WriteString("- " + l.Name)
			if l.Number != "" {
				sb.WriteString(" (" + l.Number + ")")
			}
			for _, part := range []string{l.Type, l.Status, l.Detail} {
				if part != "" {
					sb.WriteString(" | " + part)
				}
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
