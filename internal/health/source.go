package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const defaultPageSize = 1000

// Source reads measurement records from the provider gateway, one page at a
// time. Read access for the requested kind is a caller precondition; the
// gateway's permission errors propagate untouched.
type Source struct {
	client   *http.Client
	baseURL  *url.URL
	pageSize int
	logger   zerolog.Logger
}

// NewSource constructs a Source for the given gateway base URL.
func NewSource(client *http.Client, baseURL string, logger zerolog.Logger) (*Source, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse provider base url: %w", err)
	}
	return &Source{
		client:   client,
		baseURL:  parsed,
		pageSize: defaultPageSize,
		logger:   logger.With().Str("component", "record_source").Logger(),
	}, nil
}

type recordsPage struct {
	Records       []Record `json:"records"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
}

// IntervalRecords fetches every record of the given kind inside [start, end],
// following page tokens until the gateway returns an empty page or no token.
func (s *Source) IntervalRecords(ctx context.Context, kind Kind, start, end time.Time) ([]Record, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}

	var all []Record
	pageToken := ""
	for {
		page, err := s.readPage(ctx, kind, start, end, pageToken)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Records...)
		s.logger.Debug().
			Str("kind", kind.String()).
			Int("page_records", len(page.Records)).
			Str("next_page_token", page.NextPageToken).
			Msg("fetched records page")
		if len(page.Records) == 0 || page.NextPageToken == "" {
			return all, nil
		}
		pageToken = page.NextPageToken
	}
}

func (s *Source) readPage(ctx context.Context, kind Kind, start, end time.Time, pageToken string) (*recordsPage, error) {
	endpoint := s.baseURL.ResolveReference(&url.URL{Path: "/v1/records"})
	q := url.Values{}
	q.Set("kind", kind.String())
	q.Set("start", start.UTC().Format(time.RFC3339Nano))
	q.Set("end", end.UTC().Format(time.RFC3339Nano))
	q.Set("pageSize", strconv.Itoa(s.pageSize))
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build records request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("read records page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<24))
	if err != nil {
		return nil, fmt.Errorf("read records response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	var page recordsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode records page: %w", err)
	}
	return &page, nil
}
