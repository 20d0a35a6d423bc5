// Package remote implements the HTTP operations the sync engine depends
// on against a Seafile-compatible server (spec §4.3). No library in the
// retrieval pack speaks this JSON/form REST surface — the teacher's
// gowebdav client is a WebDAV client and cannot express it — so this is
// built directly on net/http and encoding/json (see DESIGN.md).
package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seasync/seasync/model"
)

// Client is a single shared HTTP client instance for one account. Per
// spec §4.3, operations within one library are serialized by the caller
// (the orchestrator processes libraries sequentially); the Client itself
// holds no library-scoped state.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     zerolog.Logger
}

// NewClient constructs a client against baseURL. Call Login to obtain and
// set a token, or SetToken if one was restored from the secret store.
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// SetToken installs a bearer token obtained from a prior Login.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Login exchanges a username/password for a bearer token.
func (c *Client) Login(username, password string) (string, error) {
	form := url.Values{"username": {username}, "password": {password}}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api2/auth-token/", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.Debug().Str("user", username).Msg("login request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Msg("login request failed")
		return "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		c.logger.Error().Msg("login rejected: invalid credentials")
		return "", model.ErrInvalidCredentials
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error().Int("status", resp.StatusCode).Msg("login rejected")
		return "", classifyStatus(resp.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decoding login response: %v", model.ErrInvalidResponse, err)
	}
	c.token = body.Token
	return body.Token, nil
}

// Ping verifies the current token is still accepted by the server.
func (c *Client) Ping() error {
	resp, err := c.do(http.MethodGet, "/api2/auth/ping/", nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading ping body: %w", err)
	}
	if !strings.Contains(string(raw), "pong") {
		return model.ErrInvalidResponse
	}
	return nil
}

// ListLibraries returns every library the account can see.
func (c *Client) ListLibraries() ([]model.Library, error) {
	resp, err := c.do(http.MethodGet, "/api2/repos/", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dtos []libraryDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, fmt.Errorf("%w: decoding repo list: %v", model.ErrInvalidResponse, err)
	}

	libs := make([]model.Library, 0, len(dtos))
	for _, d := range dtos {
		libs = append(libs, model.Library{
			ID:         d.ID,
			Name:       d.Name,
			Encrypted:  d.Encrypted,
			Permission: d.Permission,
			Size:       d.Size,
			MTime:      d.MTime,
		})
	}
	return libs, nil
}

type libraryDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Encrypted  bool   `json:"encrypted"`
	Permission string `json:"permission"`
	Size       int64  `json:"size"`
	MTime      int64  `json:"mtime"`
}

// SetLibraryPassword unlocks an encrypted library for the rest of the
// cycle.
func (c *Client) SetLibraryPassword(libraryID, password string) error {
	form := url.Values{"password": {password}}
	path := fmt.Sprintf("/api2/repos/%s/", url.PathEscape(libraryID))
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Token "+c.token)

	c.logger.Debug().Str("library", libraryID).Msg("set-library-password request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("library", libraryID).Msg("set-library-password request failed")
		return fmt.Errorf("set-library-password request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		c.logger.Error().Str("library", libraryID).Msg("set-library-password rejected: incorrect password")
		return model.ErrIncorrectPassword
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error().Int("status", resp.StatusCode).Str("library", libraryID).Msg("set-library-password rejected")
		return classifyStatus(resp.StatusCode)
	}
	return nil
}

type entryDTO struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	ID    string `json:"id"`
	MTime int64  `json:"mtime"`
	Size  int64  `json:"size"`
}

// ListDirectory lists the immediate children of one remote path.
func (c *Client) ListDirectory(libraryID, path string) ([]model.RemoteEntry, error) {
	q := url.Values{"p": {path}}
	repoPath := fmt.Sprintf("/api2/repos/%s/dir/", url.PathEscape(libraryID))
	resp, err := c.do(http.MethodGet, repoPath, q, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dtos []entryDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, fmt.Errorf("%w: decoding directory listing: %v", model.ErrInvalidResponse, err)
	}

	entries := make([]model.RemoteEntry, 0, len(dtos))
	for _, d := range dtos {
		childPath := joinRemotePath(path, d.Name)
		entries = append(entries, model.RemoteEntry{
			Path:     childPath,
			ObjectID: d.ID,
			MTime:    d.MTime,
			Size:     d.Size,
			IsDir:    d.Type == "dir",
		})
	}
	return entries, nil
}

// ListRecursive walks the whole tree under root depth-first, preserving
// the server's per-directory emission order, per spec §4.3.
func (c *Client) ListRecursive(libraryID, root string) ([]model.RemoteEntry, error) {
	var all []model.RemoteEntry
	children, err := c.ListDirectory(libraryID, root)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		all = append(all, child)
		if child.IsDir {
			sub, err := c.ListRecursive(libraryID, child.Path)
			if err != nil {
				return nil, err
			}
			all = append(all, sub...)
		}
	}
	return all, nil
}

// DownloadLink returns a short-lived URL to fetch a file's content.
func (c *Client) DownloadLink(libraryID, path string) (string, error) {
	q := url.Values{"p": {path}, "reuse": {"1"}}
	repoPath := fmt.Sprintf("/api2/repos/%s/file/", url.PathEscape(libraryID))
	resp, err := c.do(http.MethodGet, repoPath, q, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	return decodeQuotedString(resp.Body)
}

// Download streams the content at a download link obtained from
// DownloadLink. The caller must close the returned reader.
func (c *Client) Download(downloadURL string) (io.ReadCloser, error) {
	req, err := http.NewRequest(http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.token)

	c.logger.Debug().Str("url", downloadURL).Msg("download request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("url", downloadURL).Msg("download request failed")
		return nil, fmt.Errorf("download request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		c.logger.Error().Int("status", resp.StatusCode).Str("url", downloadURL).Msg("download rejected")
		return nil, classifyStatus(resp.StatusCode)
	}
	return resp.Body, nil
}

// UploadLink returns a short-lived URL to upload into parent.
func (c *Client) UploadLink(libraryID, parent string) (string, error) {
	q := url.Values{"p": {parent}}
	repoPath := fmt.Sprintf("/api2/repos/%s/upload-link/", url.PathEscape(libraryID))
	resp, err := c.do(http.MethodGet, repoPath, q, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	return decodeQuotedString(resp.Body)
}

// Upload POSTs file content as multipart form data to an upload link
// obtained from UploadLink.
func (c *Client) Upload(uploadURL, parent, filename string, r io.Reader) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("parent_dir", parent); err != nil {
		return err
	}
	if err := writer.WriteField("replace", "1"); err != nil {
		return err
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, uploadURL, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Token "+c.token)

	c.logger.Debug().Str("parent", parent).Str("file", filename).Msg("upload request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("parent", parent).Str("file", filename).Msg("upload request failed")
		return fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 443 {
		c.logger.Error().Str("parent", parent).Str("file", filename).Msg("upload rejected: quota exceeded")
		return model.ErrQuotaExceeded
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error().Int("status", resp.StatusCode).Str("parent", parent).Str("file", filename).Msg("upload rejected")
		return classifyStatus(resp.StatusCode)
	}
	return nil
}

// DeleteFile removes a remote file.
func (c *Client) DeleteFile(libraryID, path string) error {
	q := url.Values{"p": {path}}
	repoPath := fmt.Sprintf("/api2/repos/%s/file/", url.PathEscape(libraryID))
	resp, err := c.doMethod(http.MethodDelete, repoPath, q, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// DeleteDir removes a remote directory.
func (c *Client) DeleteDir(libraryID, path string) error {
	q := url.Values{"p": {path}}
	repoPath := fmt.Sprintf("/api2/repos/%s/dir/", url.PathEscape(libraryID))
	resp, err := c.doMethod(http.MethodDelete, repoPath, q, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// Mkdir creates a remote directory. Per spec this is idempotent from the
// executor's point of view: a 200 or 201 is success.
func (c *Client) Mkdir(libraryID, path string) error {
	q := url.Values{"p": {path}}
	repoPath := fmt.Sprintf("/api2/repos/%s/dir/", url.PathEscape(libraryID))

	form := url.Values{"operation": {"mkdir"}}
	fullURL := c.baseURL + repoPath + "?" + encodeQuery(q)
	req, err := http.NewRequest(http.MethodPost, fullURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Token "+c.token)

	c.logger.Debug().Str("library", libraryID).Str("path", path).Msg("mkdir request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("library", libraryID).Str("path", path).Msg("mkdir request failed")
		return fmt.Errorf("mkdir request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Error().Int("status", resp.StatusCode).Str("library", libraryID).Str("path", path).Msg("mkdir rejected")
		return classifyStatus(resp.StatusCode)
	}
	return nil
}

// do issues a GET-shaped request with query parameters and returns the
// response on 2xx, translating non-2xx statuses into the error taxonomy.
func (c *Client) do(method, path string, query url.Values, body string) (*http.Response, error) {
	return c.doMethod(method, path, query, body)
}

func (c *Client) doMethod(method, path string, query url.Values, body string) (*http.Response, error) {
	fullURL := c.baseURL + path
	if query != nil {
		fullURL += "?" + encodeQuery(query)
	}

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, fullURL, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.token)

	c.logger.Debug().Str("method", method).Str("path", path).Msg("remote request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("method", method).Str("path", path).Msg("remote request failed")
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		c.logger.Error().Int("status", resp.StatusCode).Str("method", method).Str("path", path).Msg("remote request rejected")
		return nil, classifyStatus(resp.StatusCode)
	}
	return resp, nil
}

func classifyStatus(code int) error {
	switch code {
	case http.StatusNotFound:
		return model.ErrNotFound
	case http.StatusForbidden:
		return model.ErrPermissionDenied
	case 443:
		return model.ErrQuotaExceeded
	default:
		return &model.ServerError{Code: code}
	}
}

// encodeQuery percent-encodes query values using the URL-query allowed
// set, preserving a leading "/" in the "p" path parameter the way the
// server expects (spec §4.3).
func encodeQuery(q url.Values) string {
	parts := make([]string, 0, len(q))
	for key, values := range q {
		for _, v := range values {
			parts = append(parts, url.QueryEscape(key)+"="+pathQueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

// pathQueryEscape percent-encodes each path segment individually so "/"
// separators survive in the query string, matching a server that expects
// p=/foo/bar+baz rather than p=%2Ffoo%2Fbar+baz.
func pathQueryEscape(p string) string {
	if !strings.Contains(p, "/") {
		return url.QueryEscape(p)
	}
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.QueryEscape(seg)
	}
	return strings.Join(segments, "/")
}

func joinRemotePath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return strings.TrimRight(parent, "/") + "/" + name
}

// decodeQuotedString reads a body that is a bare JSON-encoded string (with
// surrounding double quotes) and returns its unwrapped content, per
// spec §4.3 and §6.
func decodeQuotedString(r io.Reader) (string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	s := strings.TrimSpace(string(raw))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return "", fmt.Errorf("%w: unquoting response: %v", model.ErrInvalidResponse, err)
		}
		return unquoted, nil
	}
	return s, nil
}
