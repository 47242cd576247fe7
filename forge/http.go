package forge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RateReporter receives the rate-limit-remaining figure observed on each
// response that carried one.
type RateReporter func(ctx context.Context, remaining float64)

// HTTPClientConfig configures the REST client.
type HTTPClientConfig struct {
	// BaseURL is the API base URL.
	// Default: "https://api.github.com"
	BaseURL string

	// HTTPClient is the HTTP client to use for requests.
	// If nil, a default client with 30s timeout is used.
	HTTPClient *http.Client

	// RateReporter, when set, is called with the X-RateLimit-Remaining
	// value of each response.
	RateReporter RateReporter
}

// HTTPClient implements Client over the hosting API's REST surface.
type HTTPClient struct {
	config HTTPClientConfig
}

// NewHTTPClient creates a REST client.
func NewHTTPClient(config HTTPClientConfig) *HTTPClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.github.com"
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{config: config}
}

// contentEntry is the API's contents-endpoint shape, shared by files and
// directory listings.
type contentEntry struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// ReadFile fetches one file's content at a ref.
func (c *HTTPClient) ReadFile(ctx context.Context, token, repo, path, ref string) (*FileContent, error) {
	var raw json.RawMessage
	if err := c.do(ctx, token, http.MethodGet, c.contentsPath(repo, path, ref), nil, &raw); err != nil {
		return nil, err
	}

	if isJSONArray(raw) {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}

	var entry contentEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("forge: decoding file content: %w", err)
	}

	decoded, err := decodeContent(entry)
	if err != nil {
		return nil, err
	}

	return &FileContent{
		Path:    entry.Path,
		Ref:     ref,
		SHA:     entry.SHA,
		Content: decoded,
	}, nil
}

// ListFiles lists a directory at a ref.
func (c *HTTPClient) ListFiles(ctx context.Context, token, repo, path, ref string) ([]DirEntry, error) {
	var raw json.RawMessage
	if err := c.do(ctx, token, http.MethodGet, c.contentsPath(repo, path, ref), nil, &raw); err != nil {
		return nil, err
	}

	var entries []contentEntry
	if isJSONArray(raw) {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("forge: decoding listing: %w", err)
		}
	} else {
		// A file path lists as itself.
		var entry contentEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("forge: decoding listing: %w", err)
		}
		entries = []contentEntry{entry}
	}

	out := make([]DirEntry, len(entries))
	for i, e := range entries {
		out[i] = DirEntry{Name: e.Name, Path: e.Path, Type: e.Type, Size: e.Size, SHA: e.SHA}
	}
	return out, nil
}

// CreateBranch resolves fromRef's head commit and creates the branch.
func (c *HTTPClient) CreateBranch(ctx context.Context, token, repo, branch, fromRef string) (*BranchRef, error) {
	var base struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	refPath := fmt.Sprintf("/repos/%s/git/ref/heads/%s", repo, fromRef)
	if err := c.do(ctx, token, http.MethodGet, refPath, nil, &base); err != nil {
		return nil, err
	}

	body := map[string]string{
		"ref": "refs/heads/" + branch,
		"sha": base.Object.SHA,
	}
	var created struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	err := c.do(ctx, token, http.MethodPost, fmt.Sprintf("/repos/%s/git/refs", repo), body, &created)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity {
			return nil, fmt.Errorf("%w: %s", ErrRefExists, branch)
		}
		return nil, err
	}

	return &BranchRef{Name: branch, SHA: created.Object.SHA}, nil
}

// UpdateFile creates or updates a file on a branch. The current blob SHA is
// fetched first; a missing file becomes a create.
func (c *HTTPClient) UpdateFile(ctx context.Context, token, repo, path string, content []byte, message, branch string) (*CommitResult, error) {
	currentSHA := ""
	existing, err := c.ReadFile(ctx, token, repo, path, branch)
	switch {
	case err == nil:
		currentSHA = existing.SHA
	case errors.Is(err, ErrNotFound):
		// New file.
	case errors.Is(err, ErrIsDirectory):
		return nil, err
	default:
		return nil, err
	}

	body := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  branch,
	}
	if currentSHA != "" {
		body["sha"] = currentSHA
	}

	var result struct {
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	if err := c.do(ctx, token, http.MethodPut, c.contentsPath(repo, path, ""), body, &result); err != nil {
		return nil, err
	}

	return &CommitResult{
		Path:      path,
		Branch:    branch,
		CommitSHA: result.Commit.SHA,
		Created:   currentSHA == "",
	}, nil
}

// pullResponse is the API's pull-request shape.
type pullResponse struct {
	Number int    `json:"number"`
	URL    string `json:"html_url"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Head   struct {
		Ref string `json:"ref"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
}

func (p pullResponse) toPullRequest() *PullRequest {
	return &PullRequest{
		Number: p.Number,
		URL:    p.URL,
		Title:  p.Title,
		State:  p.State,
		Head:   p.Head.Ref,
		Base:   p.Base.Ref,
	}
}

// FindPullRequest returns the open pull request for head onto base, if any.
func (c *HTTPClient) FindPullRequest(ctx context.Context, token, repo, head, base string) (*PullRequest, error) {
	// The list endpoint filters head as "owner:branch".
	qualified := head
	if !strings.Contains(head, ":") {
		if owner, _, ok := strings.Cut(repo, "/"); ok {
			qualified = owner + ":" + head
		}
	}

	query := url.Values{}
	query.Set("state", "open")
	query.Set("head", qualified)
	query.Set("base", base)

	var pulls []pullResponse
	path := fmt.Sprintf("/repos/%s/pulls?%s", repo, query.Encode())
	if err := c.do(ctx, token, http.MethodGet, path, nil, &pulls); err != nil {
		return nil, err
	}
	if len(pulls) == 0 {
		return nil, nil
	}
	return pulls[0].toPullRequest(), nil
}

// CreatePullRequest opens a pull request from head onto base.
func (c *HTTPClient) CreatePullRequest(ctx context.Context, token, repo, title, body, head, base string) (*PullRequest, error) {
	payload := map[string]string{
		"title": title,
		"body":  body,
		"head":  head,
		"base":  base,
	}

	var pull pullResponse
	err := c.do(ctx, token, http.MethodPost, fmt.Sprintf("/repos/%s/pulls", repo), payload, &pull)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity {
			return nil, fmt.Errorf("%w: %s -> %s", ErrPullExists, head, base)
		}
		return nil, err
	}

	return pull.toPullRequest(), nil
}

// GetIssue fetches issue metadata.
func (c *HTTPClient) GetIssue(ctx context.Context, token, repo string, number int) (*Issue, error) {
	var issue struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		State  string `json:"state"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
		User struct {
			Login string `json:"login"`
		} `json:"user"`
		CreatedAt time.Time `json:"created_at"`
		URL       string    `json:"html_url"`
	}

	path := fmt.Sprintf("/repos/%s/issues/%d", repo, number)
	if err := c.do(ctx, token, http.MethodGet, path, nil, &issue); err != nil {
		return nil, err
	}

	labels := make([]string, len(issue.Labels))
	for i, l := range issue.Labels {
		labels[i] = l.Name
	}

	return &Issue{
		Number:    issue.Number,
		Title:     issue.Title,
		Body:      issue.Body,
		State:     issue.State,
		Labels:    labels,
		Author:    issue.User.Login,
		CreatedAt: issue.CreatedAt,
		URL:       issue.URL,
	}, nil
}

// PostComment adds a comment to an issue.
func (c *HTTPClient) PostComment(ctx context.Context, token, repo string, number int, body string) (*Comment, error) {
	var comment struct {
		ID  int64  `json:"id"`
		URL string `json:"html_url"`
	}

	path := fmt.Sprintf("/repos/%s/issues/%d/comments", repo, number)
	if err := c.do(ctx, token, http.MethodPost, path, map[string]string{"body": body}, &comment); err != nil {
		return nil, err
	}

	return &Comment{ID: comment.ID, URL: comment.URL}, nil
}

// do executes one API request, reports the rate header, and decodes the
// response into out (which may be nil).
func (c *HTTPClient) do(ctx context.Context, token, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("forge: encoding request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("forge: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("forge: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.reportRate(ctx, resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %v", ErrNotFound, apiErr)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("forge: decoding response: %w", err)
	}
	return nil
}

func (c *HTTPClient) reportRate(ctx context.Context, resp *http.Response) {
	if c.config.RateReporter == nil {
		return
	}
	header := resp.Header.Get("X-RateLimit-Remaining")
	if header == "" {
		return
	}
	remaining, err := strconv.ParseFloat(header, 64)
	if err != nil {
		return
	}
	c.config.RateReporter(ctx, remaining)
}

func (c *HTTPClient) contentsPath(repo, path, ref string) string {
	p := fmt.Sprintf("/repos/%s/contents/%s", repo, escapePath(path))
	if ref != "" {
		p += "?ref=" + url.QueryEscape(ref)
	}
	return p
}

// escapePath escapes each path segment while preserving separators.
func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

// decodeContent decodes a base64 content payload. The API wraps base64 at
// 60 columns, so embedded newlines are stripped first.
func decodeContent(entry contentEntry) ([]byte, error) {
	if entry.Encoding != "" && entry.Encoding != "base64" {
		return nil, fmt.Errorf("forge: unsupported content encoding %q", entry.Encoding)
	}
	compact := strings.ReplaceAll(entry.Content, "\n", "")
	decoded, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("forge: decoding file content: %w", err)
	}
	return decoded, nil
}

// Ensure HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
