package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestIntervalRecordsFollowsPageTokens(t *testing.T) {
	var requests []*http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Clone(r.Context()))

		var page recordsPage
		switch r.URL.Query().Get("pageToken") {
		case "":
			page = recordsPage{
				Records: []Record{
					{Kind: KindSteps, ID: "r-1", StartTime: time.Now().UTC(), EndTime: time.Now().UTC(), Value: 100},
					{Kind: KindSteps, ID: "r-2", StartTime: time.Now().UTC(), EndTime: time.Now().UTC(), Value: 200},
				},
				NextPageToken: "page-2",
			}
		case "page-2":
			page = recordsPage{
				Records: []Record{
					{Kind: KindSteps, ID: "r-3", StartTime: time.Now().UTC(), EndTime: time.Now().UTC(), Value: 300},
				},
			}
		default:
			t.Fatalf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
		require.NoError(t, json.NewEncoder(w).Encode(page))
	}))
	defer server.Close()

	source, err := NewSource(server.Client(), server.URL, zerolog.Nop())
	require.NoError(t, err)

	end := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	records, err := source.IntervalRecords(t.Context(), KindSteps, end.Add(-time.Hour), end)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "r-1", records[0].ID)
	require.Equal(t, "r-3", records[2].ID)

	require.Len(t, requests, 2)
	first := requests[0].URL.Query()
	require.Equal(t, "/v1/records", requests[0].URL.Path)
	require.Equal(t, "steps", first.Get("kind"))
	require.Equal(t, "1000", first.Get("pageSize"))
	require.Equal(t, end.Format(time.RFC3339Nano), first.Get("end"))
	require.Equal(t, "page-2", requests[1].URL.Query().Get("pageToken"))
}

func TestIntervalRecordsStopsOnEmptyPage(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// A token alongside an empty page must not trigger another fetch.
		require.NoError(t, json.NewEncoder(w).Encode(recordsPage{NextPageToken: "dangling"}))
	}))
	defer server.Close()

	source, err := NewSource(server.Client(), server.URL, zerolog.Nop())
	require.NoError(t, err)

	records, err := source.IntervalRecords(t.Context(), KindHeartRate, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Empty(t, records)
	require.Equal(t, 1, calls)
}

func TestIntervalRecordsRejectsUnknownKind(t *testing.T) {
	source, err := NewSource(nil, "http://localhost:0", zerolog.Nop())
	require.NoError(t, err)

	_, err = source.IntervalRecords(t.Context(), Kind("pressure"), time.Now().Add(-time.Hour), time.Now())
	require.ErrorIs(t, err, ErrInvalidKind)
}

func TestIntervalRecordsPropagatesGatewayErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "read scope missing", http.StatusForbidden)
	}))
	defer server.Close()

	source, err := NewSource(server.Client(), server.URL, zerolog.Nop())
	require.NoError(t, err)

	_, err = source.IntervalRecords(t.Context(), KindSteps, time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}
