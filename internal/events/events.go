// Package events decouples row writes from alert evaluation. Handlers
// publish a RowCommitted event after a successful write and return
// immediately; a background worker loads the collection's rules and runs
// them, so a slow or failing connector never delays the API response.
package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mnuddindev/koishi/internal/models/collection"
	"github.com/mnuddindev/koishi/pkg/logger"
	"github.com/mnuddindev/koishi/pkg/notify"
	"github.com/mnuddindev/koishi/pkg/utils"
	"gorm.io/gorm"
)

const queueSize = 256

// RowCommitted records one row that was just added or edited.
type RowCommitted struct {
	CollectionID uuid.UUID
	Title        string
	Row          collection.Row
}

// Bus is the in-process event queue with a single evaluation worker.
type Bus struct {
	queue    chan RowCommitted
	quit     chan struct{}
	wg       sync.WaitGroup
	db       *gorm.DB
	notifier notify.Notifier
	log      *logger.Logger
}

// NewBus starts the evaluation worker.
func NewBus(db *gorm.DB, notifier notify.Notifier, log *logger.Logger) *Bus {
	b := &Bus{
		queue:    make(chan RowCommitted, queueSize),
		quit:     make(chan struct{}),
		db:       db,
		notifier: notifier,
		log:      log,
	}
	b.wg.Add(1)
	go b.worker()
	return b
}

// Publish enqueues an event without blocking. When the queue is full the
// event is dropped with a warning; alerting is best-effort and must never
// stall a row write.
func (b *Bus) Publish(ev RowCommitted) {
	select {
	case b.queue <- ev:
	default:
		if b.log != nil {
			b.log.Warn(context.Background()).WithMeta(utils.Map{
				"collection": ev.CollectionID.String(),
			}).Logs("Event queue full, dropping row event")
		}
	}
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case ev := <-b.queue:
			b.handle(ev)
		case <-b.quit:
			// drain what is already queued before exiting
			for {
				select {
				case ev := <-b.queue:
					b.handle(ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) handle(ev RowCommitted) {
	ctx := context.Background()
	actions, err := collection.GetActions(ctx, b.db, ev.CollectionID)
	if err != nil {
		if b.log != nil {
			b.log.Warn(ctx).WithMeta(utils.Map{
				"collection": ev.CollectionID.String(),
				"error":      err.Error(),
			}).Logs("Failed to load actions for row event")
		}
		return
	}
	actions.RunActions(ctx, b.notifier, b.log, ev.Row, ev.Title, ev.CollectionID)
}

// Close stops the worker after draining pending events.
func (b *Bus) Close() {
	close(b.quit)
	b.wg.Wait()
}
