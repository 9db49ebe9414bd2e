package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-escrow/internal/entity"
)

const (
	eventField = "event"

	tailBatch = 100
	tailBlock = 5 * time.Second
)

type EventRepository interface {
	List(ctx context.Context, contract common.Address, fromSeq uint64, limit int64) ([]entity.Event, error)
	ListByGame(ctx context.Context, contract common.Address, gameID uint64) ([]entity.Event, error)
	Tail(ctx context.Context, contract common.Address, afterSeq uint64, fn func(entity.Event) error) error
}

type EventOption func(*dbEvent)

// WithTailClient moves the blocking reads of Tail onto their own client, so
// subscribers never hold connections transactions are waiting for.
func WithTailClient(client *redis.Client) EventOption {
	return func(that *dbEvent) {
		that.tail = client
	}
}

type dbEvent struct {
	client *redis.Client
	tail   *redis.Client
}

func NewEventRepository(client *redis.Client, opts ...EventOption) EventRepository {
	repo := &dbEvent{
		client: client,
		tail:   client,
	}

	for _, opt := range opts {
		opt(repo)
	}

	return repo
}

// List returns up to limit events with a sequence number of at least fromSeq.
func (that *dbEvent) List(ctx context.Context, contract common.Address, fromSeq uint64, limit int64) ([]entity.Event, error) {
	if fromSeq == 0 {
		fromSeq = 1
	}

	messages, err := that.client.XRangeN(ctx, eventsKey(contract), streamID(fromSeq), "+", limit).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	return decodeMessages(messages)
}

func (that *dbEvent) ListByGame(ctx context.Context, contract common.Address, gameID uint64) ([]entity.Event, error) {
	messages, err := that.client.XRange(ctx, gameEventsKey(contract, gameID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read game events: %w", err)
	}

	return decodeMessages(messages)
}

// Tail calls fn for every event after afterSeq, blocking for new ones until ctx
// is done or fn returns an error.
func (that *dbEvent) Tail(ctx context.Context, contract common.Address, afterSeq uint64, fn func(entity.Event) error) error {
	lastID := streamID(afterSeq)

	for {
		streams, err := that.tail.XRead(ctx, &redis.XReadArgs{
			Streams: []string{eventsKey(contract), lastID},
			Count:   tailBatch,
			Block:   tailBlock,
		}).Result()

		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			return fmt.Errorf("failed to tail events: %w", err)
		}

		for _, stream := range streams {
			events, err := decodeMessages(stream.Messages)
			if err != nil {
				return err
			}

			for _, event := range events {
				if err = fn(event); err != nil {
					return err
				}
			}

			if n := len(stream.Messages); n > 0 {
				lastID = stream.Messages[n-1].ID
			}
		}
	}
}

func decodeMessages(messages []redis.XMessage) ([]entity.Event, error) {
	events := make([]entity.Event, 0, len(messages))

	for _, msg := range messages {
		raw, ok := msg.Values[eventField].(string)
		if !ok {
			return nil, fmt.Errorf("stream entry %s has no event", msg.ID)
		}

		var event entity.Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event %s: %w", msg.ID, err)
		}

		events = append(events, event)
	}

	return events, nil
}
