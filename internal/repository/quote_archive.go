package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"aegisflow/internal/domain/models"
	"aegisflow/internal/domain/repository"
	pkgkafka "aegisflow/pkg/kafka"
)

// ClickHouseArchive implements Storage for ClickHouse.
type ClickHouseArchive struct {
	db    *sql.DB
	table string
}

// NewClickHouseArchive creates ClickHouse quote storage.
func NewClickHouseArchive(db *sql.DB, table string) repository.Storage {
	return &ClickHouseArchive{db: db, table: table}
}

func (s *ClickHouseArchive) Store(ctx context.Context, q *models.Quote) error {
	stmt := fmt.Sprintf("INSERT INTO %s (ts, symbol, bid, ask, bid_size, ask_size, source) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, stmt,
		time.UnixMilli(q.Timestamp),
		q.Symbol,
		q.Bid,
		q.Ask,
		q.BidSize,
		q.AskSize,
		"polygon",
	)
	return err
}

func (s *ClickHouseArchive) StoreBatch(ctx context.Context, quotes []*models.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	// Multi-row VALUES to reduce round-trips; chunked at 2000 rows.
	const chunkSize = 2000
	for start := 0; start < len(quotes); start += chunkSize {
		end := start + chunkSize
		if end > len(quotes) {
			end = len(quotes)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, q := range quotes[start:end] {
			if q == nil || q.Symbol == "" || q.Timestamp == 0 {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				time.UnixMilli(q.Timestamp),
				q.Symbol,
				q.Bid,
				q.Ask,
				q.BidSize,
				q.AskSize,
				"polygon",
			)
		}
		if len(values) == 0 {
			continue
		}
		stmt := fmt.Sprintf("INSERT INTO %s (ts, symbol, bid, ask, bid_size, ask_size, source) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseArchive) Close() error {
	return nil // pool is managed by pkg/clickhouse
}

// KafkaArchive implements Publisher for Kafka.
type KafkaArchive struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaArchive creates a Kafka quote publisher.
func NewKafkaArchive(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaArchive{producer: producer, topic: topic}
}

func (p *KafkaArchive) Publish(ctx context.Context, q *models.Quote) error {
	return p.producer.Publish(ctx, p.topic, []byte(q.Symbol), q)
}

func (p *KafkaArchive) PublishBatch(ctx context.Context, quotes []*models.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(quotes))
	for i, q := range quotes {
		msgs[i] = pkgkafka.Message{Key: []byte(q.Symbol), Value: q}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaArchive) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
