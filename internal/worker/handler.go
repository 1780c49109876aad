// Package worker bridges the job queue and the ingestion pipeline. The same
// handler serves the in-process consumer of the API binary and the
// standalone worker binary.
package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mfigueredo/spendy/internal/jobs"
	"github.com/mfigueredo/spendy/internal/pipeline"
)

// NewHandler builds the job handler that drives one ParseStatementJob
// through the pipeline. The raw upload is fetched back from the object store
// by the path recorded at upload time.
func NewHandler(processor *pipeline.Processor, objects pipeline.ObjectStore, log zerolog.Logger) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) (jobs.HandlerResult, error) {
		parseJob, ok := job.(*jobs.ParseStatementJob)
		if !ok {
			return jobs.HandlerResult{}, fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", parseJob.JobID).
			Str("user_id", parseJob.UserID).
			Str("filename", parseJob.Filename).
			Msg("Processing statement job")

		data, err := objects.Fetch(ctx, parseJob.StoragePath)
		if err != nil {
			// The blob may reappear (transient storage error), so report this
			// as retryable persistence trouble.
			return jobs.HandlerResult{}, &pipeline.Error{
				Kind:  pipeline.KindPersistence,
				Stage: "fetch_blob",
				Err:   err,
			}
		}

		result, err := processor.Process(ctx, pipeline.Input{
			UserID:      parseJob.UserID,
			Filename:    parseJob.Filename,
			ContentType: parseJob.ContentType,
			FileBytes:   data,
			Pages:       parseJob.Pages,
			StoragePath: parseJob.StoragePath,
		})
		if err != nil {
			parseJob.ErrorKind = string(pipeline.KindOf(err))

			// Terminal failures orphan the blob; remove it so storage only
			// holds files backed by a statement record.
			if !pipeline.IsRetryable(err) {
				if derr := objects.Delete(ctx, parseJob.StoragePath); derr != nil {
					log.Warn().Err(derr).Str("path", parseJob.StoragePath).Msg("Failed to delete orphaned blob")
				}
			}

			log.Error().
				Err(err).
				Str("job_id", parseJob.JobID).
				Str("user_id", parseJob.UserID).
				Str("error_kind", parseJob.ErrorKind).
				Msg("Statement processing failed")
			return jobs.HandlerResult{}, err
		}

		if result.Duplicate {
			// The earlier upload's blob is the canonical copy; this one is a
			// second copy of the same bytes.
			if derr := objects.Delete(ctx, parseJob.StoragePath); derr != nil {
				log.Warn().Err(derr).Str("path", parseJob.StoragePath).Msg("Failed to delete duplicate blob")
			}

			log.Warn().
				Str("job_id", parseJob.JobID).
				Str("user_id", parseJob.UserID).
				Int64("file_id", result.FileID).
				Msg("Statement already ingested")
			return jobs.HandlerResult{FileID: result.FileID, Duplicate: true}, nil
		}

		log.Info().
			Str("job_id", parseJob.JobID).
			Str("user_id", parseJob.UserID).
			Int64("file_id", result.FileID).
			Str("bank", result.Bank).
			Int("transactions", len(result.Transactions)).
			Msg("Statement processed")

		return jobs.HandlerResult{FileID: result.FileID}, nil
	}
}
