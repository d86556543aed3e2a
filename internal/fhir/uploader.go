package fhir

import (
	"context"

	"github.com/rs/zerolog"
)

// DefaultChunkSize bounds the number of observations per transaction bundle.
const DefaultChunkSize = 500

// BundleSubmitter is the slice of Client the uploader needs.
type BundleSubmitter interface {
	SubmitBundle(ctx context.Context, bundle Bundle) error
}

// ChunkCallback is invoked after each accepted chunk with the cumulative
// number of observations uploaded so far. Returning an error stops the upload
// the same way a failed chunk does.
type ChunkCallback func(ctx context.Context, uploaded int) error

// UploadResult reports what actually reached the server. Uploaded counts only
// observations whose chunk was accepted, never the nominal total requested.
type UploadResult struct {
	Uploaded  int
	Truncated bool
}

// Uploader sends observations to the FHIR server in bounded atomic chunks.
type Uploader struct {
	submitter BundleSubmitter
	chunkSize int
	logger    zerolog.Logger
}

// NewUploader constructs an Uploader with the default chunk size.
func NewUploader(submitter BundleSubmitter, logger zerolog.Logger) *Uploader {
	return &Uploader{
		submitter: submitter,
		chunkSize: DefaultChunkSize,
		logger:    logger.With().Str("component", "batch_uploader").Logger(),
	}
}

// Upload splits observations into fixed-size chunks, preserving order, and
// submits each as one transaction bundle. After each accepted chunk, onChunk
// lets the caller mark the covered source records as synced. On any failure
// processing stops immediately: no retry of the failed chunk, no later chunks.
func (u *Uploader) Upload(ctx context.Context, observations []Observation, onChunk ChunkCallback) (UploadResult, error) {
	result := UploadResult{}
	for start := 0; start < len(observations); start += u.chunkSize {
		end := start + u.chunkSize
		if end > len(observations) {
			end = len(observations)
		}
		chunk := observations[start:end]

		if err := u.submitter.SubmitBundle(ctx, NewTransactionBundle(chunk)); err != nil {
			u.logger.Error().Err(err).
				Int("chunk_start", start).
				Int("chunk_size", len(chunk)).
				Msg("bundle upload failed, stopping")
			result.Truncated = true
			return result, err
		}
		result.Uploaded = end

		if onChunk != nil {
			if err := onChunk(ctx, end); err != nil {
				u.logger.Error().Err(err).
					Int("uploaded", end).
					Msg("post-chunk marking failed, stopping")
				result.Truncated = true
				return result, err
			}
		}
	}
	return result, nil
}
