package actor

import (
	"context"

	"go.uber.org/zap"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/store"
)

// bufferChain serializes buffer appends (spec §4.5): a single background
// goroutine drains a FIFO job queue and writes to the store one at a time,
// so write N+1 only starts once write N has settled. A failed write is
// logged; the chain stays usable for subsequent writes.
type bufferChain struct {
	jobs   chan bufferJob
	logger *zap.Logger
}

type bufferJob struct {
	actorID string
	msg     message.BufferMessage
}

func newBufferChain(db store.ShortTermMemoryDB, logger *zap.Logger) *bufferChain {
	c := &bufferChain{
		jobs:   make(chan bufferJob, 256),
		logger: logger,
	}
	go c.run(db)
	return c
}

func (c *bufferChain) run(db store.ShortTermMemoryDB) {
	for job := range c.jobs {
		if db == nil {
			continue
		}
		if err := db.Append(context.Background(), job.actorID, job.msg); err != nil {
			c.logger.Error("buffer write failed",
				zap.String("actorID", job.actorID),
				zap.Error(err),
			)
		}
	}
}

// enqueue appends msg to the chain. It returns as soon as the job is queued
// and does not wait for the write; it blocks only while 256 jobs are already
// pending. Ordering relative to other enqueue calls is guaranteed by the
// single consumer goroutine.
func (c *bufferChain) enqueue(actorID string, msg message.BufferMessage) {
	c.jobs <- bufferJob{actorID: actorID, msg: msg}
}
