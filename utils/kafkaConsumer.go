package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"LecturerVote/model"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	log "github.com/sirupsen/logrus"
)

// EventHandler 处理一条讲师事件
type EventHandler func(ctx context.Context, event model.Event) error

// StartKafkaConsumer 消费讲师事件直到 ctx 结束
func StartKafkaConsumer(ctx context.Context, brokers, groupID, topic string, handle EventHandler) error {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"group.id":          groupID,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.SubscribeTopics([]string{topic}, nil); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := c.ReadMessage(100 * time.Millisecond)
		if err != nil {
			if kerr, ok := err.(kafka.Error); ok && kerr.Code() == kafka.ErrTimedOut {
				continue
			}
			log.WithError(err).Warn("consumer error")
			continue
		}
		event, err := decodeEvent(msg.Value)
		if err != nil {
			log.WithError(err).WithField("partition", msg.TopicPartition.String()).Warn("dropping malformed event")
			continue
		}
		if err := handle(ctx, event); err != nil {
			log.WithError(err).WithField("event", event.Type).Error("failed to handle event")
		}
	}
}

func decodeEvent(value []byte) (model.Event, error) {
	var event model.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return model.Event{}, err
	}
	switch event.Type {
	case model.EventLecturerAdded, model.EventLecturerVoted:
	default:
		return model.Event{}, fmt.Errorf("unknown event type %q", event.Type)
	}
	if event.CourseSection == "" || event.Name == "" {
		return model.Event{}, fmt.Errorf("event without lecturer")
	}
	return event, nil
}
