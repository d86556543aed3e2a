package fhir

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetPatientTranslatesMissingStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Patient/gone":
			w.WriteHeader(http.StatusGone)
		case "/Patient/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/Patient/known":
			require.NoError(t, json.NewEncoder(w).Encode(Patient{ResourceType: "Patient", ID: "known"}))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client, err := NewClient(server.Client(), server.URL)
	require.NoError(t, err)

	patient, err := client.GetPatient(t.Context(), "known")
	require.NoError(t, err)
	require.Equal(t, "known", patient.ID)

	_, err = client.GetPatient(t.Context(), "missing")
	require.ErrorIs(t, err, ErrPatientNotFound)

	_, err = client.GetPatient(t.Context(), "gone")
	require.ErrorIs(t, err, ErrPatientNotFound)

	_, err = client.GetPatient(t.Context(), "broken")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrPatientNotFound)
}

func TestCreatePatientReturnsServerAssignedID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/Patient", r.URL.Path)
		require.Equal(t, "application/fhir+json", r.Header.Get("Content-Type"))

		var submitted Patient
		require.NoError(t, json.NewDecoder(r.Body).Decode(&submitted))
		require.Equal(t, "Patient", submitted.ResourceType)
		require.Equal(t, []string{"test"}, submitted.Name[0].Given)

		submitted.ID = "srv-42"
		w.WriteHeader(http.StatusCreated)
		require.NoError(t, json.NewEncoder(w).Encode(submitted))
	}))
	defer server.Close()

	client, err := NewClient(server.Client(), server.URL)
	require.NoError(t, err)

	id, err := client.CreatePatient(t.Context(), Patient{
		Name: []HumanName{{Given: []string{"test"}, Family: "patient"}},
	})
	require.NoError(t, err)
	require.Equal(t, "srv-42", id)
}

func TestSubmitBundlePostsToServerRoot(t *testing.T) {
	var gotPath string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(server.Client(), server.URL+"/fhir/")
	require.NoError(t, err)

	bundle := NewTransactionBundle([]Observation{{ResourceType: "Observation", Status: "final"}})
	require.NoError(t, client.SubmitBundle(t.Context(), bundle))

	require.Equal(t, "/fhir", gotPath)
	var decoded Bundle
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	require.Equal(t, "transaction", decoded.Type)
	require.Len(t, decoded.Entry, 1)
	require.Equal(t, "Observation", decoded.Entry[0].Request.URL)
}

func TestSubmitBundleSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"issue":"bad entry"}`, http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client, err := NewClient(server.Client(), server.URL)
	require.NoError(t, err)

	err = client.SubmitBundle(t.Context(), NewTransactionBundle(nil))
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusUnprocessableEntity, httpErr.StatusCode)
	require.Contains(t, httpErr.Body, "bad entry")
}

func TestPingHitsCapabilityStatement(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(server.Client(), server.URL)
	require.NoError(t, err)
	require.NoError(t, client.Ping(t.Context()))
	require.Equal(t, "/metadata", gotPath)
}
