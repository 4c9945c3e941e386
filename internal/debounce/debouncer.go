// Package debounce coalesces a burst of board edits into at most one
// durable write after a quiet interval.
package debounce

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"boardsync/pkg/interfaces"
)

const writeTimeout = 10 * time.Second

type pendingWrite struct {
	pageID    string
	state     json.RawMessage
	updatedBy string
}

// Debouncer holds one session's single pending-snapshot slot. Each
// Queue overwrites the slot and restarts the timer (leading-edge-reset):
// a continuously edited page is saved once, after activity pauses.
//
// The generation counter is compared at fire time so a stale timer that
// lost the race with a newer Queue or with Stop can never write.
type Debouncer struct {
	store  interfaces.BoardStore
	delay  time.Duration
	logger *logrus.Entry

	mu      sync.Mutex
	pending *pendingWrite
	timer   *time.Timer
	gen     uint64
	stopped bool
}

func NewDebouncer(store interfaces.BoardStore, delay time.Duration, logger *logrus.Entry) *Debouncer {
	return &Debouncer{
		store:  store,
		delay:  delay,
		logger: logger,
	}
}

// Queue replaces the pending snapshot with the newest payload and
// restarts the quiet-interval timer. Only the newest payload matters;
// there is no queue.
func (d *Debouncer) Queue(pageID string, state json.RawMessage, updatedBy string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pending = &pendingWrite{pageID: pageID, state: state, updatedBy: updatedBy}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Stop cancels any outstanding timer and drops the pending slot. Called
// on session teardown before group membership is released, so a closed
// session's timer cannot fire afterwards and write stale data.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.gen++
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	write := d.pending
	d.pending = nil
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	version, err := d.store.UpdatePageState(ctx, write.pageID, write.state, write.updatedBy)
	if err != nil {
		// No automatic retry: the slot is already dropped and the next
		// board_update schedules a fresh attempt.
		d.logger.WithError(err).WithField("page_id", write.pageID).Error("debounced save failed")
		return
	}

	d.logger.WithFields(logrus.Fields{
		"page_id": write.pageID,
		"version": version,
	}).Debug("page snapshot saved")
}
