// Package worker pulls ledger events off a durable JetStream consumer,
// deduplicates them against Redis, and persists survivors via pkg/ledger/repo.
// Grounded on the teacher's pkg/oms/worker.Worker (PullSubscribe + Fetch(10)
// loop, unmarshal, handle, Ack), extended with a Redis SETNX dedup gate the
// teacher's worker doesn't need because its source topic has no redelivery
// requirement as strict as a financial audit trail's.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/orderflow-labs/mmcore/pkg/ledger"
	"github.com/orderflow-labs/mmcore/pkg/ledger/model"
	"github.com/orderflow-labs/mmcore/pkg/ledger/repo"
	"github.com/orderflow-labs/mmcore/pkg/logging"
)

// DedupTTL bounds how long an event ID is remembered; JetStream redelivery
// after this window would double-insert, but Postgres's ON CONFLICT DO
// NOTHING backstop (see pkg/ledger/repo) still catches it.
const DedupTTL = 24 * time.Hour

// dedupStore is the narrow Redis surface the worker needs, isolated so
// tests can fake it without a live Redis server.
type dedupStore interface {
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type redisDedupStore struct{ client *redis.Client }

func (s redisDedupStore) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, 1, ttl).Result()
}

// Worker consumes one JetStream subject and persists events exactly once,
// best-effort (spec.md §8 Scenario G).
type Worker struct {
	repo  repo.IEventRepo
	dedup dedupStore
	log   *logging.Logger
}

// New constructs a Worker. redisClient may be nil, in which case dedup is
// skipped and only Postgres's conflict-do-nothing guards against
// duplicates.
func New(eventRepo repo.IEventRepo, redisClient *redis.Client, log *logging.Logger) *Worker {
	var dedup dedupStore
	if redisClient != nil {
		dedup = redisDedupStore{client: redisClient}
	}
	return &Worker{repo: eventRepo, dedup: dedup, log: log}
}

// Run pull-subscribes to subject under durable and processes messages
// until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, js nats.JetStreamContext, subject, durable string) error {
	sub, err := js.PullSubscribe(subject, durable)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(10, nats.MaxWait(time.Second))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			w.logError(ctx, "fetch failed", err)
			continue
		}

		for _, msg := range msgs {
			if err := w.handle(ctx, msg.Data); err != nil {
				w.logError(ctx, "handle event failed", err)
				continue
			}
			_ = msg.Ack()
		}
	}
}

func (w *Worker) handle(ctx context.Context, data []byte) error {
	var event ledger.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return err
	}

	if w.dedup != nil {
		ok, err := w.claim(ctx, event.ID)
		if err != nil {
			return err
		}
		if !ok {
			return nil // already persisted by an earlier delivery of the same event
		}
	}

	record := &model.EventRecord{
		ID:         event.ID,
		Kind:       string(event.Kind),
		StrategyID: string(event.StrategyID),
		AccountID:  string(event.AccountID),
		MarketID:   string(event.MarketID),
		Side:       string(event.Side),
		Price:      event.Price,
		Amount:     event.Amount,
		OrderID:    event.OrderID,
		At:         event.At,
	}
	return w.repo.Create(ctx, record)
}

// claim atomically reserves eventID in the dedup store, returning false if
// another delivery already claimed it.
func (w *Worker) claim(ctx context.Context, eventID string) (bool, error) {
	return w.dedup.SetNX(ctx, model.DedupKey(eventID), DedupTTL)
}

func (w *Worker) logError(ctx context.Context, msg string, err error) {
	if w.log == nil {
		return
	}
	w.log.Error(ctx, msg, zap.Error(err))
}
