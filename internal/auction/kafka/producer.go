package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"ms-auction/internal/config"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"
)

// Producer streams auction events to Kafka, one writer per topic. Payloads
// are JSON keyed by auction id so a partition sees one auction's events in
// order.
type Producer struct {
	bidPlaced    *kafka.Writer
	bidOutbid    *kafka.Writer
	auctionEnded *kafka.Writer
	auctionSold  *kafka.Writer
	log          *logger.Logger
}

func NewProducer(cfg config.KafkaConfig, log *logger.Logger) *Producer {
	newWriter := func(topic string) *kafka.Writer {
		return kafka.NewWriter(kafka.WriterConfig{
			Brokers: cfg.Brokers,
			Topic:   topic,
		})
	}
	return &Producer{
		bidPlaced:    newWriter(cfg.Topics.BidPlaced),
		bidOutbid:    newWriter(cfg.Topics.BidOutbid),
		auctionEnded: newWriter(cfg.Topics.AuctionEnded),
		auctionSold:  newWriter(cfg.Topics.AuctionSold),
		log:          log,
	}
}

func (p *Producer) publish(w *kafka.Writer, auctionID int64, payload any) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	p.log.LogKafka("PUBLISH", w.Topic, string(msgBytes))

	return w.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(strconv.FormatInt(auctionID, 10)),
			Value: msgBytes,
		},
	)
}

// PublishBidPlaced streams the accepted-bid event.
func (p *Producer) PublishBidPlaced(event models.BidEvent) error {
	return p.publish(p.bidPlaced, event.AuctionID, event)
}

// PublishBidOutbid streams the displaced-leader event.
func (p *Producer) PublishBidOutbid(event models.BidEvent) error {
	return p.publish(p.bidOutbid, event.AuctionID, event)
}

// PublishAuctionEnded streams the end-of-auction event.
func (p *Producer) PublishAuctionEnded(event models.AuctionEvent) error {
	return p.publish(p.auctionEnded, event.AuctionID, event)
}

// PublishAuctionSold streams the sold event, buy-now included.
func (p *Producer) PublishAuctionSold(event models.AuctionEvent) error {
	return p.publish(p.auctionSold, event.AuctionID, event)
}

// Close flushes and closes all writers.
func (p *Producer) Close() error {
	var firstErr error
	for _, w := range []*kafka.Writer{p.bidPlaced, p.bidOutbid, p.auctionEnded, p.auctionSold} {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close kafka writer %s: %w", w.Topic, err)
		}
	}
	return firstErr
}
