// Package wordpress is a REST client for the WordPress endpoints the quiz
// workflow needs.
//
// Information Hiding:
// - Endpoint paths and basic-auth application passwords
// - WordPress rendered-field JSON envelope
// - HTTP status classification into the shared error taxonomy
//
// Every operation flows through a remote.Caller, so retry, timeout, and
// the wordpress circuit breaker apply uniformly. Methods here perform a
// single HTTP attempt and classify their errors for the call layer.

package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/richinex/quizforge/model"
	"github.com/richinex/quizforge/remote"
)

// providerName keys the circuit breaker shared by all WordPress calls.
const providerName = "wordpress"

// Client talks to a WordPress site's REST API using an application
// password. Safe for concurrent use.
type Client struct {
	baseURL    string
	username   string
	appPass    string
	httpClient *http.Client
	caller     *remote.Caller
}

// NewClient creates a client for the site at baseURL (scheme + host, no
// trailing path). The caller should carry the data-call config.
func NewClient(baseURL, username, appPassword string, caller *remote.Caller) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		appPass:  appPassword,
		httpClient: &http.Client{
			// Per-attempt deadlines come from the caller's context; this is
			// a backstop against a wedged transport.
			Timeout: 60 * time.Second,
		},
		caller: caller,
	}
}

// rendered is the WordPress {"rendered": "..."} envelope.
type rendered struct {
	Rendered string `json:"rendered"`
}

// Post is a WordPress post as returned by /wp/v2/posts.
type Post struct {
	ID      int64    `json:"id"`
	Title   rendered `json:"title"`
	Content rendered `json:"content"`
	Link    string   `json:"link"`
	Status  string   `json:"status"`
}

// ToContentItem flattens the rendered envelopes into the domain type.
func (p Post) ToContentItem() model.ContentItem {
	return model.ContentItem{
		ID:      p.ID,
		Title:   p.Title.Rendered,
		Content: p.Content.Rendered,
		Link:    p.Link,
	}
}

// PostPage is one page of a post listing.
type PostPage struct {
	Posts      []model.ContentItem
	TotalPages int
}

// Ping validates connectivity and credentials by fetching the current
// user. Returns nil when the site is reachable and the password works.
func (c *Client) Ping(ctx context.Context) error {
	_, err := remote.Do(ctx, c.caller, providerName, "ping", func(ctx context.Context) (struct{}, error) {
		body, _, err := c.get(ctx, "/wp-json/wp/v2/users/me", nil)
		if err != nil {
			return struct{}{}, err
		}
		var user struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(body, &user); err != nil {
			return struct{}{}, remote.WrapKind(remote.KindParse,
				fmt.Errorf("unexpected users/me payload: %w", err))
		}
		return struct{}{}, nil
	})
	return err
}

// ListPosts fetches one page of published posts.
func (c *Client) ListPosts(ctx context.Context, page, perPage int) (PostPage, error) {
	return remote.Do(ctx, c.caller, providerName, "list_posts", func(ctx context.Context) (PostPage, error) {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("per_page", strconv.Itoa(perPage))
		query.Set("status", "publish")

		body, header, err := c.get(ctx, "/wp-json/wp/v2/posts", query)
		if err != nil {
			return PostPage{}, err
		}

		var posts []Post
		if err := json.Unmarshal(body, &posts); err != nil {
			return PostPage{}, remote.WrapKind(remote.KindParse,
				fmt.Errorf("unexpected posts payload: %w", err))
		}

		totalPages, _ := strconv.Atoi(header.Get("X-WP-TotalPages"))
		if totalPages < 1 {
			totalPages = 1
		}

		items := make([]model.ContentItem, 0, len(posts))
		for _, p := range posts {
			items = append(items, p.ToContentItem())
		}
		return PostPage{Posts: items, TotalPages: totalPages}, nil
	})
}

// GetPost fetches a single post by ID.
func (c *Client) GetPost(ctx context.Context, id int64) (model.ContentItem, error) {
	return remote.Do(ctx, c.caller, providerName, "get_post", func(ctx context.Context) (model.ContentItem, error) {
		body, _, err := c.get(ctx, fmt.Sprintf("/wp-json/wp/v2/posts/%d", id), nil)
		if err != nil {
			return model.ContentItem{}, err
		}
		var post Post
		if err := json.Unmarshal(body, &post); err != nil {
			return model.ContentItem{}, remote.WrapKind(remote.KindParse,
				fmt.Errorf("unexpected post payload: %w", err))
		}
		return post.ToContentItem(), nil
	})
}

// UpdatePost replaces the content of a post.
func (c *Client) UpdatePost(ctx context.Context, id int64, content string) error {
	_, err := remote.Do(ctx, c.caller, providerName, "update_post", func(ctx context.Context) (struct{}, error) {
		payload := map[string]string{"content": content}
		_, err := c.send(ctx, http.MethodPost, fmt.Sprintf("/wp-json/wp/v2/posts/%d", id), payload)
		return struct{}{}, err
	})
	return err
}

// QuizArtifact is a published quiz stored as its own WordPress entity.
type QuizArtifact struct {
	ID     int64  `json:"id"`
	PostID int64  `json:"post_id"`
	Key    string `json:"key"`
}

// CreateQuizArtifact publishes quiz HTML as an artifact tied to a post.
// The key is a caller-supplied correlation ID.
func (c *Client) CreateQuizArtifact(ctx context.Context, postID int64, key, quizHTML string) (QuizArtifact, error) {
	return remote.Do(ctx, c.caller, providerName, "create_artifact", func(ctx context.Context) (QuizArtifact, error) {
		payload := map[string]any{
			"post_id": postID,
			"key":     key,
			"content": quizHTML,
		}
		body, err := c.send(ctx, http.MethodPost, "/wp-json/quizforge/v1/artifacts", payload)
		if err != nil {
			return QuizArtifact{}, err
		}
		var artifact QuizArtifact
		if err := json.Unmarshal(body, &artifact); err != nil {
			return QuizArtifact{}, remote.WrapKind(remote.KindParse,
				fmt.Errorf("unexpected artifact payload: %w", err))
		}
		return artifact, nil
	})
}

// DeleteQuizArtifact removes a previously created artifact.
func (c *Client) DeleteQuizArtifact(ctx context.Context, artifactID int64) error {
	_, err := remote.Do(ctx, c.caller, providerName, "delete_artifact", func(ctx context.Context) (struct{}, error) {
		_, err := c.send(ctx, http.MethodDelete, fmt.Sprintf("/wp-json/quizforge/v1/artifacts/%d", artifactID), nil)
		return struct{}{}, err
	})
	return err
}

// get performs an authenticated GET and returns the body and headers.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, http.Header, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.appPass)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("wordpress request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, classifyHTTPStatus(resp.StatusCode, path, body)
	}
	return body, resp.Header, nil
}

// send performs an authenticated write with an optional JSON payload.
func (c *Client) send(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.appPass)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wordpress request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyHTTPStatus(resp.StatusCode, path, body)
	}
	return body, nil
}

// classifyHTTPStatus maps a WordPress error status to the shared taxonomy.
func classifyHTTPStatus(status int, path string, body []byte) error {
	var kind remote.ErrorKind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = remote.KindAuth
	case status == http.StatusNotFound:
		kind = remote.KindValidation
	case status == http.StatusTooManyRequests:
		kind = remote.KindQuota
	case status >= 500:
		kind = remote.KindServer
	default:
		kind = remote.KindTransport
	}

	msg := wpErrorMessage(body)
	if status == http.StatusNotFound && msg == "" {
		msg = "not found"
	}
	if msg != "" {
		return remote.WrapKind(kind, fmt.Errorf("wordpress %s: status %d: %s", path, status, msg))
	}
	return remote.WrapKind(kind, fmt.Errorf("wordpress %s: status %d", path, status))
}

// wpErrorMessage pulls the human-readable message out of a WordPress
// error body, if there is one.
func wpErrorMessage(body []byte) string {
	var wpErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &wpErr); err != nil {
		return ""
	}
	return wpErr.Message
}
