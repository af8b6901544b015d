package events

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Publisher delivers a committed event to the outside world.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// LogPublisher writes events to the process log. Useful until a real broker
// is wired in front of the indexers.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	log.Printf("event %s %s", topic, payload)
	return nil
}

// Relay drains pending outbox rows and hands them to the publisher.
type Relay struct {
	pool *pgxpool.Pool
	pub  Publisher
	// Interval between drain sweeps.
	Interval time.Duration
}

func NewRelay(pool *pgxpool.Pool, pub Publisher) *Relay {
	return &Relay{pool: pool, pub: pub, Interval: time.Second}
}

// Run loops until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drainOnce(ctx); err != nil {
				log.Printf("outbox relay: %v", err)
			}
		}
	}
}

func (r *Relay) drainOnce(ctx context.Context) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("events: begin drain: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, topic, payload
		FROM outbox
		WHERE status = 'pending'
		ORDER BY id
		LIMIT 100
		FOR UPDATE SKIP LOCKED
	`)
	if err != nil {
		return fmt.Errorf("events: select pending: %w", err)
	}

	type row struct {
		id      int64
		topic   string
		payload []byte
	}
	batch := make([]row, 0, 100)
	for rows.Next() {
		var m row
		if err := rows.Scan(&m.id, &m.topic, &m.payload); err != nil {
			rows.Close()
			return fmt.Errorf("events: scan pending: %w", err)
		}
		batch = append(batch, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("events: iterate pending: %w", err)
	}

	for _, m := range batch {
		status := "published"
		if err := r.pub.Publish(ctx, m.topic, m.payload); err != nil {
			log.Printf("publish %s (id=%d): %v", m.topic, m.id, err)
			status = "pending"
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox SET status=$1, attempts=attempts+1 WHERE id=$2`, status, m.id); err != nil {
			return fmt.Errorf("events: mark outbox row: %w", err)
		}
	}

	return tx.Commit(ctx)
}
