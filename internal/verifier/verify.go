// Package verifier runs off-thread Schnorr signature verification and
// implements the NIP-40 expiration and NIP-70 protected-event checks.
package verifier

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

type verifyJob struct {
	event  *nostr.Event
	result chan error
}

// Verifier runs event signature checks on a fixed pool of worker goroutines
// so a burst of EVENT submissions never blocks the connection actor loop.
type Verifier struct {
	jobs chan verifyJob
}

// NewVerifier starts workers goroutines consuming verification jobs.
func NewVerifier(workers int) *Verifier {
	if workers < 1 {
		workers = 1
	}
	v := &Verifier{jobs: make(chan verifyJob, workers*4)}
	for i := 0; i < workers; i++ {
		go v.worker()
	}
	return v
}

func (v *Verifier) worker() {
	for job := range v.jobs {
		ok, err := job.event.CheckSignature()
		switch {
		case err != nil:
			job.result <- fmt.Errorf("check signature: %w", err)
		case !ok:
			job.result <- fmt.Errorf("invalid signature")
		default:
			job.result <- nil
		}
	}
}

// Verify checks event's signature, blocking the caller but not the worker
// pool's other goroutines, until ctx is done.
func (v *Verifier) Verify(ctx context.Context, event *nostr.Event) error {
	result := make(chan error, 1)
	select {
	case v.jobs <- verifyJob{event: event, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new jobs. In-flight jobs still complete.
func (v *Verifier) Close() {
	close(v.jobs)
}
