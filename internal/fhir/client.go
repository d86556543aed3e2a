package fhir

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds every request to the FHIR server.
const DefaultTimeout = 30 * time.Second

// ErrPatientNotFound is returned by GetPatient when the server does not know
// the id (deleted resources included).
var ErrPatientNotFound = errors.New("patient not found on fhir server")

// HTTPError is a non-2xx response from the FHIR server.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fhir server error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("fhir server error: status=%d body=%s", e.StatusCode, e.Body)
}

// Client is a minimal REST client for the remote FHIR server.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient builds a Client for the given server base URL.
func NewClient(httpClient *http.Client, baseURL string) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid fhir base url: %w", err)
	}
	return &Client{http: httpClient, baseURL: trimmed}, nil
}

// GetPatient probes the server for the given patient id.
func (c *Client) GetPatient(ctx context.Context, id string) (*Patient, error) {
	var patient Patient
	err := c.doJSON(ctx, http.MethodGet, "/Patient/"+url.PathEscape(id), nil, &patient)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && (httpErr.StatusCode == http.StatusNotFound || httpErr.StatusCode == http.StatusGone) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &patient, nil
}

// CreatePatient submits a patient resource and returns the server-assigned id.
func (c *Client) CreatePatient(ctx context.Context, patient Patient) (string, error) {
	patient.ResourceType = "Patient"
	var created Patient
	if err := c.doJSON(ctx, http.MethodPost, "/Patient", patient, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("fhir server response missing patient id")
	}
	return created.ID, nil
}

// SubmitBundle posts a transaction bundle to the server root. The server
// guarantees all-or-nothing acceptance of the bundle's entries.
func (c *Client) SubmitBundle(ctx context.Context, bundle Bundle) error {
	return c.doJSON(ctx, http.MethodPost, "/", bundle, nil)
}

// Ping checks reachability of the server's capability statement. Used as the
// scheduler's connectivity precondition.
func (c *Client) Ping(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/metadata", nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s %s body: %w", method, path, err)
		}
		body = bytes.NewReader(encoded)
	}

	target := c.baseURL + path
	if path == "/" {
		target = c.baseURL
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/fhir+json")
	if in != nil {
		req.Header.Set("Content-Type", "application/fhir+json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
