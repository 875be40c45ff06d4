package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/carddemo/auth-gateway/internal/api/metrics"
	"github.com/carddemo/auth-gateway/internal/core/domain"
	"github.com/carddemo/auth-gateway/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

// Dispatcher slides session TTLs after authenticated requests. Ticks are
// routed to a fixed set of workers by hashing the session id, so ticks for
// one session apply in order.
type Dispatcher struct {
	workers []chan string
	store   ports.SessionStore
	ttl     time.Duration
	log     zerolog.Logger
}

var _ ports.ActivityRecorder = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, store ports.SessionStore, ttl time.Duration, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan string, numWorkers),
		store:   store,
		ttl:     ttl,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan string, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Touch queues a TTL refresh for sessionID. It never blocks: when the
// worker's buffer is full the tick is dropped, since a later request will
// slide the TTL again.
func (d *Dispatcher) Touch(sessionID string) {
	if sessionID == "" {
		return
	}
	idx := d.shardIndex(sessionID)
	select {
	case d.workers[idx] <- sessionID:
		metrics.ActivityQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	default:
		metrics.ActivityDroppedTotal.Inc()
	}
}

// shardIndex maps a session id deterministically to a worker index.
func (d *Dispatcher) shardIndex(sessionID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan string) {
	depth := metrics.ActivityQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			return
		case sessionID, ok := <-ch:
			if !ok {
				return
			}
			depth.Set(float64(len(ch)))
			err := d.store.RefreshTTL(ctx, sessionID, d.ttl)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrSessionNotFound):
				d.log.Debug().Str("sid", sessionID).Msg("activity for missing session record")
			default:
				d.log.Warn().Err(err).
					Str("sid", sessionID).
					Int("worker_id", id).
					Msg("session ttl refresh failed")
			}
		}
	}
}
