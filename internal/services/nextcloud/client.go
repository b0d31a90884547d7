package nextcloud

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"linkrelay/internal/config"
	"linkrelay/internal/observability"
	"linkrelay/internal/services"
)

const serviceName = "nextcloud"

// Public link share parameters: shareType 3 is a public link; permissions 15
// grant read, update, create, and delete without reshare.
const (
	shareTypePublicLink = "3"
	sharePermissions    = "15"
	sharesEndpoint      = "/ocs/v2.php/apps/files_sharing/api/v1/shares"
	davFilesEndpoint    = "/remote.php/dav/files/"
	maxErrorBody        = 4096
)

// HTTPDoer describes the HTTP client used by the Nextcloud client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Share is a public link share returned by the OCS API.
type Share struct {
	ID  string
	URL string
}

// Client talks to the WebDAV and OCS sharing endpoints of one Nextcloud account.
type Client struct {
	baseURL   string
	username  string
	password  string
	csrfToken string
	client    HTTPDoer
	metrics   *observability.Metrics
}

// NewClient constructs a client. A nil doer falls back to http.DefaultClient.
func NewClient(baseURL, username, password, csrfToken string, client HTTPDoer, metrics *observability.Metrics) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		username:  strings.TrimSpace(username),
		password:  password,
		csrfToken: strings.TrimSpace(csrfToken),
		client:    client,
		metrics:   metrics,
	}
}

// NewConfiguredClient builds a client from configuration with the configured request timeout.
func NewConfiguredClient(cfg *config.Config, metrics *observability.Metrics) *Client {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout()}
	return NewClient(cfg.Nextcloud.URL, cfg.Nextcloud.Username, cfg.Nextcloud.Password, cfg.Nextcloud.CSRFToken, httpClient, metrics)
}

// FolderURL returns the absolute WebDAV URL for a folder path.
func (c *Client) FolderURL(folderPath string) string {
	return c.baseURL + davFilesEndpoint + url.PathEscape(c.username) + escapePath(folderPath)
}

// CreateFolder issues MKCOL. It reports created=true for 201 and created=false
// when the collection already exists (405).
func (c *Client) CreateFolder(ctx context.Context, folderPath string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "MKCOL", c.FolderURL(folderPath), nil)
	if err != nil {
		return false, fmt.Errorf("build mkcol request: %w", err)
	}
	c.authorize(req)

	resp, err := c.do(req, "mkcol")
	if err != nil {
		return false, err
	}
	defer drain(resp)
	switch resp.StatusCode {
	case http.StatusCreated:
		return true, nil
	case http.StatusMethodNotAllowed:
		return false, nil
	default:
		return false, statusError(resp, "mkcol")
	}
}

// MoveFolder issues MOVE without overwriting an existing destination.
func (c *Client) MoveFolder(ctx context.Context, fromPath, toPath string) error {
	req, err := http.NewRequestWithContext(ctx, "MOVE", c.FolderURL(fromPath), nil)
	if err != nil {
		return fmt.Errorf("build move request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Destination", c.FolderURL(toPath))
	req.Header.Set("Overwrite", "F")

	resp, err := c.do(req, "move")
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return statusError(resp, "move")
	}
	return nil
}

// Probe issues a depth-0 PROPFIND against folderPath to confirm the
// credentials and that the folder exists.
func (c *Client) Probe(ctx context.Context, folderPath string) error {
	req, err := http.NewRequestWithContext(ctx, "PROPFIND", c.FolderURL(folderPath), nil)
	if err != nil {
		return fmt.Errorf("build propfind request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Depth", "0")

	resp, err := c.do(req, "propfind")
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusMultiStatus {
		return statusError(resp, "propfind")
	}
	return nil
}

// CreateShare requests a public, upload-enabled link share for folderPath.
func (c *Client) CreateShare(ctx context.Context, folderPath string) (Share, error) {
	form := url.Values{}
	form.Set("path", folderPath)
	form.Set("shareType", shareTypePublicLink)
	form.Set("publicUpload", "true")
	form.Set("permissions", sharePermissions)

	endpoint := c.baseURL + sharesEndpoint + "?format=xml"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Share{}, fmt.Errorf("build share request: %w", err)
	}
	c.authorize(req)
	c.ocsHeaders(req)

	resp, err := c.do(req, "share_create")
	if err != nil {
		return Share{}, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return Share{}, statusError(resp, "share_create")
	}
	share, err := decodeShare(resp.Body)
	if err != nil {
		return Share{}, services.Wrap(services.ErrRemote, serviceName, "share_create", "decode response", err)
	}
	return share, nil
}

// DeleteShare revokes a share by id.
func (c *Client) DeleteShare(ctx context.Context, shareID string) error {
	endpoint := c.baseURL + sharesEndpoint + "/" + url.PathEscape(shareID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build share delete request: %w", err)
	}
	c.authorize(req)
	c.ocsHeaders(req)

	resp, err := c.do(req, "share_delete")
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return statusError(resp, "share_delete")
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	req.SetBasicAuth(c.username, c.password)
}

func (c *Client) ocsHeaders(req *http.Request) {
	req.Header.Set("OCS-APIRequest", "true")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.csrfToken != "" {
		req.Header.Set("requesttoken", c.csrfToken)
	}
}

func (c *Client) do(req *http.Request, operation string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.ObserveRemoteCall(serviceName, operation, "transport_error", time.Since(start))
		return nil, services.Wrap(services.ErrTransient, serviceName, operation, "request failed", err)
	}
	result := "ok"
	if resp.StatusCode >= http.StatusMultipleChoices {
		result = fmt.Sprintf("status_%d", resp.StatusCode)
	}
	c.metrics.ObserveRemoteCall(serviceName, operation, result, time.Since(start))
	return resp, nil
}

type ocsResponse struct {
	XMLName xml.Name `xml:"ocs"`
	Meta    struct {
		Status     string `xml:"status"`
		StatusCode int    `xml:"statuscode"`
		Message    string `xml:"message"`
	} `xml:"meta"`
	Data struct {
		ID  string `xml:"id"`
		URL string `xml:"url"`
	} `xml:"data"`
}

func decodeShare(r io.Reader) (Share, error) {
	var payload ocsResponse
	if err := xml.NewDecoder(r).Decode(&payload); err != nil {
		return Share{}, fmt.Errorf("parse ocs xml: %w", err)
	}
	share := Share{ID: strings.TrimSpace(payload.Data.ID), URL: strings.TrimSpace(payload.Data.URL)}
	if share.ID == "" || share.URL == "" {
		return Share{}, fmt.Errorf("ocs response missing share id or url (status %d %s)", payload.Meta.StatusCode, payload.Meta.Message)
	}
	return share, nil
}

func statusError(resp *http.Response, operation string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &services.StatusError{
		Service:    serviceName,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	out := strings.Join(segments, "/")
	if !strings.HasPrefix(out, "/") {
		out = "/" + out
	}
	return out
}
