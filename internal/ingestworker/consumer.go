package ingestworker

import (
	"context"
	"sync"
	"time"

	"github.com/corvexa/ingestord/internal/queue"
	"github.com/corvexa/ingestord/internal/telemetry"
)

const (
	receiveMaxMessages = 5
	receiveWaitSeconds = 10
	emptyBatchSleep    = 1 * time.Second
	shutdownDeadline   = 5 * time.Second
)

// Run is the consumer loop (spec §4.4 Consumer loop): long-polls the queue,
// dispatches each message's processing concurrently, and acks only after a
// successful commit. Honors ctx cancellation within shutdownDeadline.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return w.drain()
		default:
		}

		messages, err := w.queue.Receive(ctx, receiveMaxMessages, receiveWaitSeconds, func(body string, parseErr error) {
			w.logger.Error("skipping unparseable queue message", "error", parseErr, "body", body)
		})
		if err != nil {
			w.logger.Error("receiving queue messages", "error", err)
			select {
			case <-ctx.Done():
				return w.drain()
			case <-time.After(emptyBatchSleep):
			}
			continue
		}

		if len(messages) == 0 {
			select {
			case <-ctx.Done():
				return w.drain()
			case <-time.After(emptyBatchSleep):
			}
			continue
		}

		var wg sync.WaitGroup
		for _, msg := range messages {
			msg := msg
			wg.Add(1)
			w.inflight.Add(1)
			go func() {
				defer wg.Done()
				defer w.inflight.Done()
				w.handleMessage(ctx, msg)
			}()
		}
		wg.Wait()
	}
}

// handleMessage processes one message and acks it only on success (spec
// §4.4: "A message is acknowledged only after its processor returns
// success; on failure, it is NOT acked").
func (w *Worker) handleMessage(ctx context.Context, msg queue.Message) {
	if err := w.ProcessMessage(ctx, msg.Envelope); err != nil {
		w.logger.Error("processing message failed, leaving unacked for redelivery",
			"ingestion_job_id", msg.Envelope.IngestionJobID, "error", err)
		return
	}

	if err := w.queue.Ack(ctx, msg.ReceiptHandle); err != nil {
		w.logger.Error("acking processed message", "ingestion_job_id", msg.Envelope.IngestionJobID, "error", err)
	}
}

// drain waits up to shutdownDeadline for in-flight processors to finish.
func (w *Worker) drain() error {
	done := make(chan struct{})
	go func() { w.inflight.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(shutdownDeadline):
		w.logger.Warn("shutdown deadline reached with processors still in flight")
	}

	telemetry.IngestionMessagesProcessedTotal.WithLabelValues("shutdown").Add(0)
	return nil
}
