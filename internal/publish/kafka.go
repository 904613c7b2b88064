package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/lox/firetrends/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Kafka produces one JSON message per result row, keyed by station or zone
// id so compacted topics keep the latest row per key.
type Kafka struct {
	writer messageWriter
	logger *slog.Logger
}

func NewKafka(brokers []string, topic string, logger *slog.Logger) *Kafka {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newKafka(w, logger)
}

func newKafka(w messageWriter, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{writer: w, logger: logger}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) PublishStations(ctx context.Context, rows []models.StationRow) error {
	msgs := make([]kafkago.Message, len(rows))
	for i := range rows {
		msg, err := rowMessage(StationTable, rows[i].StationID, rows[i].UpdateDate, rows[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return k.write(ctx, StationTable, msgs)
}

func (k *Kafka) PublishZones(ctx context.Context, rows []models.ZoneRow) error {
	msgs := make([]kafkago.Message, len(rows))
	for i := range rows {
		msg, err := rowMessage(ZoneTable, rows[i].ZoneID, rows[i].UpdateDate, rows[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return k.write(ctx, ZoneTable, msgs)
}

func (k *Kafka) write(ctx context.Context, table string, msgs []kafkago.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %s messages: %w", table, err)
	}
	k.logger.Info("kafka: table published", "table", table, "messages", len(msgs))
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

func rowMessage(table, key, updateDate string, row any) (kafkago.Message, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s row %s: %w", table, key, err)
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "table", Value: []byte(table)},
			{Key: "update_date", Value: []byte(updateDate)},
		},
	}, nil
}
