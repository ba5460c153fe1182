package bugzilla

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the Bugzilla instance used unless BZLOGS_URL says
// otherwise.
const DefaultBaseURL = "https://bugzilla.redhat.com"

// Client talks to a Bugzilla server over its REST API. Attachment data is
// downloaded through the classic attachment.cgi endpoint because the REST
// API only returns it base64-encoded inside a JSON document, which rules
// out streaming large archives.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a Client for the given Bugzilla base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: attachment downloads can be large and slow.
		// Individual metadata calls get per-request context timeouts.
		httpClient: &http.Client{Timeout: 0},
	}
}

// Login authenticates against /rest/login and keeps the returned token for
// all later calls.
func (c *Client) Login(ctx context.Context, user, password string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	q := url.Values{"login": {user}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/login?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating login request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	var lr struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(resp, &lr); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if lr.Token == "" {
		return fmt.Errorf("login returned no session token")
	}
	c.token = lr.Token
	return nil
}

// Bug fetches a bug's summary fields and its attachment metadata. The
// attachment list excludes the data field so listing a bug with large
// attachments stays cheap.
func (c *Client) Bug(ctx context.Context, id string) (*Bug, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var br struct {
		Bugs []Bug `json:"bugs"`
	}
	if err := c.getJSON(ctx, "/rest/bug/"+id, url.Values{"include_fields": {"id,summary"}}, &br); err != nil {
		return nil, fmt.Errorf("fetching bug %s: %w", id, err)
	}
	if len(br.Bugs) == 0 {
		return nil, fmt.Errorf("bug %s not found", id)
	}
	bug := &br.Bugs[0]

	var ar struct {
		Bugs map[string][]Attachment `json:"bugs"`
	}
	if err := c.getJSON(ctx, "/rest/bug/"+id+"/attachment", url.Values{"exclude_fields": {"data"}}, &ar); err != nil {
		return nil, fmt.Errorf("fetching attachments of bug %s: %w", id, err)
	}
	bug.Attachments = ar.Bugs[id]
	return bug, nil
}

// OpenAttachment streams the attachment's original bytes via attachment.cgi.
func (c *Client) OpenAttachment(ctx context.Context, id int) (io.ReadCloser, error) {
	q := url.Values{"id": {strconv.Itoa(id)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/attachment.cgi", q), nil)
	if err != nil {
		return nil, fmt.Errorf("creating attachment request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening attachment %d: %w", id, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("opening attachment %d: unexpected status %d", id, resp.StatusCode)
	}
	return resp.Body, nil
}

// UploadAttachment attaches data to the bug. The REST create call wants the
// content base64-encoded in the JSON body, so the reader is consumed fully;
// the files this tool uploads are text logs, not archives.
func (c *Client) UploadAttachment(ctx context.Context, bug, fileName, description, contentType string, data io.Reader) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	raw, err := io.ReadAll(data)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", fileName, err)
	}

	body, err := json.Marshal(map[string]any{
		"ids":          []string{bug},
		"data":         base64.StdEncoding.EncodeToString(raw),
		"file_name":    fileName,
		"summary":      description,
		"content_type": contentType,
	})
	if err != nil {
		return 0, fmt.Errorf("marshalling attachment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/rest/bug/"+bug+"/attachment", nil), bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("uploading %s: %w", fileName, err)
	}

	var ur struct {
		IDs []int `json:"ids"`
	}
	if err := decodeJSON(resp, &ur); err != nil {
		return 0, fmt.Errorf("uploading %s: %w", fileName, err)
	}
	if len(ur.IDs) == 0 {
		return 0, fmt.Errorf("uploading %s: server returned no attachment id", fileName)
	}
	return ur.IDs[0], nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, q), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	return decodeJSON(resp, v)
}

// endpoint builds a full URL with the session token appended once logged in.
func (c *Client) endpoint(path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	if c.token != "" {
		q.Set("token", c.token)
	}
	return c.baseURL + path + "?" + q.Encode()
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		body, err := io.ReadAll(resp.Body)
		if err == nil && json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("bugzilla error %d: %s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
