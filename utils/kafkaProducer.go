package utils

import (
	"context"
	"encoding/json"

	"LecturerVote/model"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	log "github.com/sirupsen/logrus"
)

// KafkaPublisher 把讲师事件发送到 kafka
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
}

// NewKafkaPublisher 初始化Kafka生产者
func NewKafkaPublisher(brokers, topic string) (*KafkaPublisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": brokers})
	if err != nil {
		return nil, err
	}
	go drainDeliveries(p.Events())
	return &KafkaPublisher{producer: p, topic: topic}, nil
}

// drainDeliveries 在后台读取投递结果，失败只记日志
func drainDeliveries(events <-chan kafka.Event) {
	for e := range events {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				log.WithError(ev.TopicPartition.Error).WithField("key", string(ev.Key)).Warn("kafka delivery failed")
			}
		case kafka.Error:
			log.WithError(ev).Warn("kafka producer error")
		}
	}
}

// Publish 把消息放进发送队列后立即返回，投递结果由后台读取。
// 同一讲师的事件使用同一个 key，保证分区内有序
func (k *KafkaPublisher) Publish(ctx context.Context, event model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            []byte(eventKey(event)),
		Value:          value,
	}
	return k.producer.Produce(msg, nil)
}

// Close 等待所有消息发送完成后关闭
func (k *KafkaPublisher) Close() {
	k.producer.Flush(15 * 1000)
	k.producer.Close()
}

func eventKey(event model.Event) string {
	return event.CourseSection + ":" + event.Name
}
