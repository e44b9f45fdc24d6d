package intakestats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tschelli/lead-lander-sub001/common/logging"
)

// Collector accumulates submissions in memory and flushes them to Redis
// periodically. Safe for concurrent use.
type Collector struct {
	client        *Client
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	batches map[string]*Batch

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCollector starts the background flush loop. Call Stop to flush the
// remainder and end it.
func NewCollector(client *Client, flushInterval time.Duration, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Collector{
		client:        client,
		flushInterval: flushInterval,
		logger:        logger,
		batches:       make(map[string]*Batch),
		ctx:           ctx,
		cancel:        cancel,
	}

	c.wg.Add(1)
	go c.flushLoop()

	return c
}

// Record counts one accepted submission of clientID.
func (c *Collector) Record(clientID string, duplicate bool, ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch, ok := c.batches[clientID]
	if !ok {
		batch = NewBatch(clientID)
		c.batches[clientID] = batch
	}
	batch.Add(duplicate, ip)
}

// GetStats reads flushed statistics; pending in-memory counts are not included.
func (c *Collector) GetStats(ctx context.Context, clientID string) (*Stats, error) {
	return c.client.GetStats(ctx, clientID)
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.flush()
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

func (c *Collector) flush() {
	c.mu.Lock()
	batches := c.batches
	c.batches = make(map[string]*Batch)
	c.mu.Unlock()

	if len(batches) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	flushed := 0
	for _, batch := range batches {
		if err := c.client.FlushBatch(ctx, batch); err != nil {
			c.logger.Error("failed to flush intake stats",
				logging.ClientID(batch.ClientID),
				slog.Int64("created", batch.Created),
				logging.Error(err))
			// Merge back for the next tick.
			c.mu.Lock()
			if existing, ok := c.batches[batch.ClientID]; ok {
				existing.merge(batch)
			} else {
				c.batches[batch.ClientID] = batch
			}
			c.mu.Unlock()
			continue
		}
		flushed++
	}

	if flushed > 0 {
		c.logger.Debug("flushed intake stats", slog.Int("clients", flushed))
	}
}

// FlushNow forces an immediate flush.
func (c *Collector) FlushNow() {
	c.flush()
}

// Stop ends the flush loop after a final flush.
func (c *Collector) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Pending returns the unflushed submission count per client.
func (c *Collector) Pending() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int64, len(c.batches))
	for id, b := range c.batches {
		out[id] = b.Created + b.Duplicates
	}
	return out
}
