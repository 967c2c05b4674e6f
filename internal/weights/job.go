// Copyright 2024 The Pylon Authors
// This file is part of the Pylon library.
//
// The Pylon library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The Pylon library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the Pylon library. If not, see <http://www.gnu.org/licenses/>.

package weights

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pborman/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/opentensor/pylon/internal/bittensor"
	"github.com/opentensor/pylon/internal/log"
)

// ErrTempoExpired is the inner signal ApplyWeights uses to stop
// retrying once the chain has advanced past the submission's initial
// epoch. It is logged, never returned to the job's caller as a
// failure — see spec.md §7's propagation policy.
var ErrTempoExpired = errors.New("weights: tempo expired before submission completed")

// JobStatus is the terminal state label attached to job_duration.
type JobStatus string

const (
	StatusCompleted    JobStatus = "completed"
	StatusTempoExpired JobStatus = "tempo_expired"
	StatusFailed       JobStatus = "failed"
	StatusError        JobStatus = "error"
)

const attemptTimeout = 120 * time.Second

var (
	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "pylon_apply_weights_job_duration_seconds",
		Help: "Wall-clock duration of a full ApplyWeights job.",
	}, []string{"job_status", "netuid", "hotkey"})

	attemptDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "pylon_apply_weights_attempt_duration_seconds",
		Help: "Wall-clock duration of a single ApplyWeights inner attempt.",
	}, []string{"operation", "status", "netuid", "hotkey"})
)

func init() {
	prometheus.MustRegister(jobDuration, attemptDuration)
}

// RetryConfig carries the WEIGHTS_RETRY_* settings from spec.md §6.
type RetryConfig struct {
	Attempts     int           // WEIGHTS_RETRY_ATTEMPTS; total tries = Attempts+1
	InitialDelay time.Duration // WEIGHTS_RETRY_DELAY_SECONDS
}

// Job runs a single ApplyWeights submission (component F): it is
// created per PUT /subnet/weights call and fires-and-forgets, never
// deduplicated against other jobs for the same wallet — see
// DESIGN.md's Open Question decision #1.
type Job struct {
	ID bittensor.Hotkey // wallet hotkey, also used as the metrics label

	Client       bittensor.ChainClient
	NetUid       bittensor.NetUid
	Weights      bittensor.WeightsMapping
	InitialEpoch bittensor.Epoch
	Retry        RetryConfig

	log log.Logger
}

// NewJob builds an ApplyWeights job. Every job gets a freshly
// generated correlation ID (pborman/uuid), attached to its log
// context as job_id; callers cannot supply their own.
func NewJob(client bittensor.ChainClient, netuid bittensor.NetUid, walletHotkey bittensor.Hotkey, w bittensor.WeightsMapping, initialEpoch bittensor.Epoch, retry RetryConfig) *Job {
	correlationID := uuid.New()
	return &Job{
		ID:           walletHotkey,
		Client:       client,
		NetUid:       netuid,
		Weights:      w,
		InitialEpoch: initialEpoch,
		Retry:        retry,
		log: log.New("component", "weights.Job", "job_id", correlationID,
			"netuid", netuid, "hotkey", walletHotkey),
	}
}

// Run executes the job to completion: repeated attempts with
// exponential backoff (initial = Retry.InitialDelay, doubling, capped
// at 10x initial), stopping early the moment the chain passes
// InitialEpoch.End. It never returns an error to its caller — per
// spec.md §7, ApplyWeights failures are logged, not escalated; the
// returned JobStatus is for the caller's own bookkeeping/tests.
func (j *Job) Run(ctx context.Context) JobStatus {
	start := time.Now()
	status := StatusError

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = j.Retry.InitialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = j.Retry.InitialDelay * 10
	b.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not elapsed wall-clock

	bounded := backoff.WithMaxRetries(b, uint64(j.Retry.Attempts))
	bounded = backoff.WithContext(bounded, ctx)

	attempt := 0
	operation := func() error {
		attempt++
		if expired, err := j.tempoExpired(ctx); err != nil {
			return err
		} else if expired {
			return backoff.Permanent(ErrTempoExpired)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		defer cancel()

		attemptStart := time.Now()
		op, err := j.attempt(attemptCtx)
		j.observeAttempt(op, time.Since(attemptStart), err)
		if err != nil {
			j.log.Warn("apply_weights attempt failed", "attempt", attempt, "err", err)
		}
		return err
	}

	err := backoff.Retry(operation, bounded)
	switch {
	case err == nil:
		status = StatusCompleted
	case errors.Is(err, ErrTempoExpired):
		status = StatusTempoExpired
		j.log.Info("tempo ended before weights could be submitted")
	default:
		status = StatusFailed
		j.log.Error("apply_weights exhausted retries", "err", err)
	}

	jobDuration.WithLabelValues(string(status), netuidLabel(j.NetUid), string(j.ID)).Observe(time.Since(start).Seconds())
	return status
}

func (j *Job) tempoExpired(ctx context.Context) (bool, error) {
	current, err := j.Client.GetLatestBlock(ctx)
	if err != nil {
		return false, err
	}
	return current.Number >= j.InitialEpoch.End, nil
}

// attempt is component F's `_apply_weights`: fetch hyperparams, decide
// commit vs. set, submit once; the chain client resolves hotkeys to
// uids against the current neuron table inside that commit/set call.
// It returns which operation it chose, for attempt_duration's label.
func (j *Job) attempt(ctx context.Context) (operation string, err error) {
	hp, err := j.Client.GetHyperparams(ctx, j.NetUid, nil)
	if err != nil {
		return "get_hyperparams", err
	}

	if hp.CommitRevealEnabled() {
		_, err := j.Client.CommitWeights(ctx, j.NetUid, j.Weights)
		return "commit_weights", err
	}
	err = j.Client.SetWeights(ctx, j.NetUid, j.Weights)
	return "set_weights", err
}

func (j *Job) observeAttempt(operation string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	attemptDuration.WithLabelValues(operation, status, netuidLabel(j.NetUid), string(j.ID)).Observe(d.Seconds())
}

func netuidLabel(n bittensor.NetUid) string {
	return strconv.FormatUint(uint64(n), 10)
}
