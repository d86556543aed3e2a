package fhir

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// IdentityStore holds the locally persisted patient identity.
type IdentityStore interface {
	PatientID() string
	SetPatientID(id string)
	ClearPatientID()
	PatientName() (given, family string)
}

// PatientResolver ensures a patient resource exists on the FHIR server and
// caches its id locally. It is not safe for concurrent invocation; the sync
// orchestrator's single-flight lock serializes callers.
type PatientResolver struct {
	client *Client
	store  IdentityStore
	logger zerolog.Logger
}

// NewPatientResolver constructs a PatientResolver.
func NewPatientResolver(client *Client, store IdentityStore, logger zerolog.Logger) *PatientResolver {
	return &PatientResolver{
		client: client,
		store:  store,
		logger: logger.With().Str("component", "patient_resolver").Logger(),
	}
}

// GetOrCreateID returns the remote patient id, probing a stored id for
// existence first. A stored id the server no longer knows is cleared, and a
// fresh patient is created from the stored name.
func (r *PatientResolver) GetOrCreateID(ctx context.Context) (string, error) {
	if existing := r.store.PatientID(); existing != "" {
		_, err := r.client.GetPatient(ctx, existing)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrPatientNotFound) {
			// Probe errors also clear the stale identity and fall
			// through to creation.
			r.logger.Warn().Err(err).Str("patient_id", existing).Msg("patient probe failed")
		}
		r.store.ClearPatientID()
	}

	given, family := r.store.PatientName()
	patient := Patient{
		Name: []HumanName{{Given: []string{given}, Family: family}},
	}
	id, err := r.client.CreatePatient(ctx, patient)
	if err != nil {
		return "", fmt.Errorf("create patient: %w", err)
	}
	r.store.SetPatientID(id)
	r.logger.Info().Str("patient_id", id).Msg("created patient on fhir server")
	return id, nil
}
