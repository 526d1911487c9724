package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/greg-hellings/datasettool/pkg/dataset"
)

// maxErrorBody caps how much of an error response is read for diagnostics.
const maxErrorBody = 64 << 10

// HTTPDoer abstracts the subset of *http.Client used by HTTPClient so tests
// can inject a fake transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient implements Client over the panel-dataset REST API.
type HTTPClient struct {
	doer   HTTPDoer
	base   *url.URL
	config Config
}

// NewHTTPClient creates a client for the configured base URL. When a token is
// configured every request carries it as a bearer token.
func NewHTTPClient(config Config) (*HTTPClient, error) {
	var hc *http.Client
	if config.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.Token})
		hc = oauth2.NewClient(context.Background(), ts)
	} else {
		hc = &http.Client{}
	}
	hc.Timeout = config.Timeout
	return NewHTTPClientWithDoer(config, hc)
}

// NewHTTPClientWithDoer creates a client that sends requests through doer.
func NewHTTPClientWithDoer(config Config, doer HTTPDoer) (*HTTPClient, error) {
	if doer == nil {
		return nil, errors.New("backend: nil HTTP doer")
	}
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, errors.New("backend: base URL is required")
	}
	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("backend: invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend: base URL must be absolute: %s", config.BaseURL)
	}
	return &HTTPClient{doer: doer, base: base, config: config}, nil
}

// FetchSnapshot retrieves the classification snapshot of an export.
func (c *HTTPClient) FetchSnapshot(ctx context.Context, exportID string) (*dataset.Snapshot, error) {
	if exportID == "" {
		return nil, errors.New("backend: export id is required")
	}
	q := url.Values{}
	q.Set("export_uuid", exportID)
	q.Set("random_result", strconv.FormatBool(c.config.RandomResult))

	body, err := c.do(ctx, http.MethodGet, snapshotPath, q, nil)
	if err != nil {
		return nil, err
	}

	var resp SnapshotResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("backend: failed to decode snapshot: %w", err)
	}
	snap := resp.Data
	snap.ExportID = exportID
	snap.Info = resp.Info

	slog.Debug("Fetched snapshot",
		"export", exportID,
		"components", snap.Len())
	return &snap, nil
}

// WriteBucket persists one bucket's membership.
func (c *HTTPClient) WriteBucket(ctx context.Context, exportID string, bucket dataset.Bucket, imageIDs []string) error {
	route, err := RouteFor(bucket)
	if err != nil {
		return err
	}
	payload := WriteRequest{ExportUUID: exportID, ImageUUIDList: imageIDs}
	if payload.ImageUUIDList == nil {
		payload.ImageUUIDList = []string{}
	}
	if _, err := c.do(ctx, route.Method, route.Path, nil, payload); err != nil {
		return err
	}
	slog.Debug("Wrote bucket",
		"export", exportID,
		"bucket", bucket.String(),
		"images", len(imageIDs))
	return nil
}

// TriggerConversion starts the external zip-generation pipeline.
func (c *HTTPClient) TriggerConversion(ctx context.Context, projectID, exportID string) error {
	payload := ConversionRequest{ProjectUUID: projectID, ExportUUID: exportID}
	_, err := c.do(ctx, http.MethodPost, conversionPath, nil, payload)
	return err
}

// do sends one request and returns the response body of a 2xx answer.
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("backend: failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("backend: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: %s %s: %w", method, u.Redacted(), err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg, loc := parseErrorBody(raw)
		return nil, &APIError{
			Method:     method,
			URL:        u.Redacted(),
			StatusCode: resp.StatusCode,
			Message:    msg,
			Location:   loc,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: failed to read response: %w", err)
	}
	return body, nil
}
