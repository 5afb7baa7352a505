package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client provides workcell-scoped Redis operations for the run journal.
// All keys and channels are automatically namespaced with the workcell name.
// The client is thread-safe and can be used concurrently from multiple
// goroutines.
type Client struct {
	rdb      *redis.Client
	workcell string
}

// NewClient creates a new journal client for the specified workcell.
// The client automatically namespaces all keys and channels with the
// workcell name.
//
// Returns an error if workcell is empty.
func NewClient(redisOpts *redis.Options, workcell string) (*Client, error) {
	if workcell == "" {
		return nil, fmt.Errorf("workcell name cannot be empty")
	}

	return &Client{
		rdb:      redis.NewClient(redisOpts),
		workcell: workcell,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Workcell returns the workcell name this client is scoped to.
func (c *Client) Workcell() string {
	return c.workcell
}

// RedisClient exposes the underlying Redis client for scan-based listing.
// Prefer the typed methods for everything else.
func (c *Client) RedisClient() *redis.Client {
	return c.rdb
}

// CreateRun writes a run record to Redis and publishes a lifecycle event.
// Validates the record before writing.
//
// The record is stored as a Redis hash at flexprep:{workcell}:run:{id}.
func (c *Client) CreateRun(ctx context.Context, r *RunRecord) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid run record: %w", err)
	}

	hash, err := RunToHash(r)
	if err != nil {
		return fmt.Errorf("failed to serialize run record: %w", err)
	}

	key := RunKey(c.workcell, r.ID)
	if err := c.rdb.HSet(ctx, key, hash).Err(); err != nil {
		return fmt.Errorf("failed to write run record to Redis: %w", err)
	}

	return c.publish(ctx, &RunEvent{Kind: EventKindLifecycle, Run: r})
}

// GetRun retrieves a run record by ID.
// Returns (nil, redis.Nil) if the run doesn't exist.
// Use IsNotFound() to check for not-found errors.
func (c *Client) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	key := RunKey(c.workcell, runID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run record from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	record, err := HashToRun(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize run record: %w", err)
	}

	return record, nil
}

// UpdateRun replaces an existing run record with new data (full replacement)
// and publishes a lifecycle event. Used to mark progress and the terminal
// status transition when the run ends.
func (c *Client) UpdateRun(ctx context.Context, r *RunRecord) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid run record: %w", err)
	}

	hash, err := RunToHash(r)
	if err != nil {
		return fmt.Errorf("failed to serialize run record: %w", err)
	}

	key := RunKey(c.workcell, r.ID)
	if err := c.rdb.HSet(ctx, key, hash).Err(); err != nil {
		return fmt.Errorf("failed to update run record in Redis: %w", err)
	}

	return c.publish(ctx, &RunEvent{Kind: EventKindLifecycle, Run: r})
}

// RunExists checks if a run exists without fetching it.
func (c *Client) RunExists(ctx context.Context, runID string) (bool, error) {
	key := RunKey(c.workcell, runID)
	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check run existence: %w", err)
	}
	return exists > 0, nil
}

// ScanRuns returns the IDs of all runs whose ID starts with the given prefix.
// An empty prefix matches every run. Step list keys are excluded.
// Uses Redis SCAN to iterate without blocking the server.
func (c *Client) ScanRuns(ctx context.Context, idPrefix string) ([]string, error) {
	prefix := fmt.Sprintf("flexprep:%s:run:", c.workcell)
	pattern := prefix + idPrefix + "*"
	iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()

	var ids []string
	for iter.Next(ctx) {
		id := iter.Val()[len(prefix):]
		// The pattern also matches "{id}:steps" list keys
		if strings.Contains(id, ":") {
			continue
		}
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan runs: %w", err)
	}

	return ids, nil
}

// AppendStep records one step at the tail of the run's step list and
// publishes it as a step event. Steps must be appended in execution order;
// the list preserves insertion order.
func (c *Client) AppendStep(ctx context.Context, e *StepEvent) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid step event: %w", err)
	}

	stepJSON, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal step event: %w", err)
	}

	key := RunStepsKey(c.workcell, e.RunID)
	if err := c.rdb.RPush(ctx, key, stepJSON).Err(); err != nil {
		return fmt.Errorf("failed to append step to Redis: %w", err)
	}

	return c.publish(ctx, &RunEvent{Kind: EventKindStep, Step: e})
}

// GetSteps retrieves every recorded step of a run in execution order.
// Returns an empty slice if the run has no steps (not an error).
func (c *Client) GetSteps(ctx context.Context, runID string) ([]StepEvent, error) {
	key := RunStepsKey(c.workcell, runID)

	raw, err := c.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read steps from Redis: %w", err)
	}

	steps := make([]StepEvent, 0, len(raw))
	for i, item := range raw {
		var step StepEvent
		if err := json.Unmarshal([]byte(item), &step); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step %d: %w", i, err)
		}
		steps = append(steps, step)
	}

	return steps, nil
}

// CountSteps returns how many steps a run has recorded so far.
func (c *Client) CountSteps(ctx context.Context, runID string) (int64, error) {
	key := RunStepsKey(c.workcell, runID)
	n, err := c.rdb.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count steps: %w", err)
	}
	return n, nil
}

// publish sends a RunEvent on the workcell's run_events channel.
func (c *Client) publish(ctx context.Context, event *RunEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}

	channel := RunEventsChannel(c.workcell)
	if err := c.rdb.Publish(ctx, channel, eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish run event: %w", err)
	}

	return nil
}

// Subscription represents an active Pub/Sub subscription to run events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *RunEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of run events.
// The channel is closed when the subscription is closed or the context is
// cancelled.
func (s *Subscription) Events() <-chan *RunEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures and other non-fatal issues.
// The subscription continues after errors - messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe subscribes to all run events on this workcell: lifecycle
// transitions and steps for every run. Caller must call Close() when done.
// Context cancellation also stops the subscription.
//
// Events are delivered on a buffered channel (size 10) to prevent blocking.
// If the subscriber is too slow, events may be dropped by Redis Pub/Sub
// (at-most-once delivery); the per-run step list keeps the full history.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	channel := RunEventsChannel(c.workcell)
	pubsub := c.rdb.Subscribe(ctx, channel)

	eventsChan := make(chan *RunEvent, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event RunEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal run event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error
// (redis.Nil). Use this to check if GetRun returned "not found".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
