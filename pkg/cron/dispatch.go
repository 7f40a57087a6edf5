package cron

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	robcron "github.com/robfig/cron/v3"

	"github.com/Marczelloo/atlas-hub/internal/crypto"
	"github.com/Marczelloo/atlas-hub/internal/store"
	"github.com/Marczelloo/atlas-hub/internal/telemetry"
)

// logPreviewBytes caps the captured response body.
const logPreviewBytes = 500

// dispatch runs one firing of a job: up to retries+1 attempts, each with
// its own run row. When the concurrency cap is reached the firing is
// dropped — not queued — and neither lastRunAt nor nextRunAt moves.
func (s *Scheduler) dispatch(ctx context.Context, job store.CronJob, sched robcron.Schedule, loc *time.Location) {
	s.mu.Lock()
	if s.runningCount >= s.maxConcurrent {
		s.mu.Unlock()
		telemetry.CronDispatchesTotal.WithLabelValues("skipped").Inc()
		s.logger.Warn("scheduler: concurrency cap reached, dropping firing",
			"job_id", job.ID,
			"job_name", job.Name,
			"max_concurrent", s.maxConcurrent,
		)
		return
	}
	s.runningCount++
	telemetry.CronRunningJobs.Set(float64(s.runningCount))
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.runningCount--
		telemetry.CronRunningJobs.Set(float64(s.runningCount))
		s.mu.Unlock()
	}()

	var lastErr string
	succeeded := false

	for attempt := 1; attempt <= job.Retries+1; attempt++ {
		run, err := s.store.CreateCronJobRun(ctx, job.ID, attempt)
		if err != nil {
			s.logger.Error("scheduler: creating run row", "error", err, "job_id", job.ID)
			return
		}

		start := time.Now()
		status, httpStatus, preview, execErr := s.executeAttempt(ctx, job)
		duration := time.Since(start).Milliseconds()

		var errText *string
		if execErr != nil {
			msg := execErr.Error()
			errText = &msg
			lastErr = msg
		}
		if err := s.store.FinishCronJobRun(ctx, run.ID, status, httpStatus, errText, preview, duration); err != nil {
			s.logger.Error("scheduler: finishing run row", "error", err, "run_id", run.ID)
		}

		if status == store.CronRunStatusSuccess {
			succeeded = true
			break
		}

		if attempt <= job.Retries {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(job.RetryBackoffMs) * time.Millisecond):
			}
		}
	}

	// Even an exhausted dispatch moves the run pointers; only
	// concurrency-skipped firings leave them untouched.
	now := time.Now()
	next := sched.Next(now.In(loc))
	if err := s.store.UpdateCronJobRunTimes(ctx, job.ID, now.UTC(), next.UTC()); err != nil {
		s.logger.Warn("scheduler: updating run times", "error", err, "job_id", job.ID)
	}

	if succeeded {
		telemetry.CronDispatchesTotal.WithLabelValues("success").Inc()
		return
	}

	telemetry.CronDispatchesTotal.WithLabelValues("fail").Inc()
	s.logger.Error("scheduler: dispatch exhausted all attempts",
		"job_id", job.ID,
		"job_name", job.Name,
		"attempts", job.Retries+1,
		"last_error", lastErr,
	)
	if s.notifier != nil {
		s.notifier.JobFailure(ctx, job.Name, job.Retries+1, lastErr)
	}
}

// executeAttempt runs one attempt and classifies its outcome.
func (s *Scheduler) executeAttempt(ctx context.Context, job store.CronJob) (status string, httpStatus *int, preview *string, err error) {
	timeout := time.Duration(job.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch job.JobType {
	case store.CronJobTypeHTTP:
		return s.executeHTTP(attemptCtx, job)
	case store.CronJobTypePlatform:
		if job.Action == nil {
			return store.CronRunStatusFail, nil, nil, fmt.Errorf("platform job has no action")
		}
		if err := s.actions.Run(attemptCtx, *job.Action, job.Config); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return store.CronRunStatusTimeout, nil, nil, err
			}
			return store.CronRunStatusFail, nil, nil, err
		}
		return store.CronRunStatusSuccess, nil, nil, nil
	default:
		return store.CronRunStatusFail, nil, nil, fmt.Errorf("unknown job type %q", job.JobType)
	}
}

// executeHTTP issues the configured request. Headers and body are decrypted
// on demand and exist in plaintext only for this dispatch.
func (s *Scheduler) executeHTTP(ctx context.Context, job store.CronJob) (string, *int, *string, error) {
	if job.URL == nil || job.Method == nil {
		return store.CronRunStatusFail, nil, nil, fmt.Errorf("http job is missing url or method")
	}

	var body io.Reader
	if job.EncryptedBody != nil && *job.EncryptedBody != "" {
		plain, err := openSealed(s.cipher, *job.EncryptedBody)
		if err != nil {
			return store.CronRunStatusFail, nil, nil, fmt.Errorf("decrypting body: %w", err)
		}
		body = bytes.NewReader(plain)
	}

	req, err := http.NewRequestWithContext(ctx, *job.Method, *job.URL, body)
	if err != nil {
		return store.CronRunStatusFail, nil, nil, fmt.Errorf("building request: %w", err)
	}

	if job.EncryptedHeaders != nil && *job.EncryptedHeaders != "" {
		plain, err := openSealed(s.cipher, *job.EncryptedHeaders)
		if err != nil {
			return store.CronRunStatusFail, nil, nil, fmt.Errorf("decrypting headers: %w", err)
		}
		var headers map[string]string
		if err := json.Unmarshal(plain, &headers); err != nil {
			return store.CronRunStatusFail, nil, nil, fmt.Errorf("decoding headers: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return store.CronRunStatusTimeout, nil, nil, err
		}
		return store.CronRunStatusFail, nil, nil, err
	}
	defer resp.Body.Close()

	previewBytes, _ := io.ReadAll(io.LimitReader(resp.Body, logPreviewBytes))
	previewStr := string(previewBytes)
	code := resp.StatusCode

	if code >= 400 {
		return store.CronRunStatusFail, &code, &previewStr, fmt.Errorf("http status %d", code)
	}
	return store.CronRunStatusSuccess, &code, &previewStr, nil
}

// sealedEnvelope is the stored JSON form of an encrypted job field.
type sealedEnvelope struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"authTag"`
}

// Seal encrypts plaintext into the stored string form.
func Seal(cipher *crypto.Cipher, plaintext []byte) (string, error) {
	env, err := cipher.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(sealedEnvelope{Ciphertext: env.Ciphertext, IV: env.IV, AuthTag: env.AuthTag})
	if err != nil {
		return "", fmt.Errorf("encoding sealed value: %w", err)
	}
	return string(raw), nil
}

// openSealed decrypts a stored string back to plaintext.
func openSealed(cipher *crypto.Cipher, sealed string) ([]byte, error) {
	var env sealedEnvelope
	if err := json.Unmarshal([]byte(sealed), &env); err != nil {
		return nil, fmt.Errorf("decoding sealed value: %w", err)
	}
	return cipher.Decrypt(crypto.Envelope{Ciphertext: env.Ciphertext, IV: env.IV, AuthTag: env.AuthTag})
}
