package kafka

import (
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Booking lifecycle topics.
const (
	TopicBookingCreated   = "booking.created"
	TopicBookingConfirmed = "booking.confirmed"
	TopicBookingCancelled = "booking.cancelled"
	TopicBookingRefunded  = "booking.refunded"
)

// AllTopics lists every topic this service publishes to.
func AllTopics() []string {
	return []string{
		TopicBookingCreated,
		TopicBookingConfirmed,
		TopicBookingCancelled,
		TopicBookingRefunded,
	}
}

// EnsureTopicsExist creates the topics if the broker doesn't have them yet.
func EnsureTopicsExist(brokers []string, topics []string) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", controller.Host)
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		err = controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		if err != nil {
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			log.Printf("error creating topic %s: %v", topic, err)
		} else {
			log.Printf("created topic: %s", topic)
		}
	}

	// Give the broker a moment to propagate metadata.
	time.Sleep(1 * time.Second)
	return nil
}
