package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"otp-auth-service/internal/client"
	"otp-auth-service/internal/util"
)

// deliveryJob is the payload a mailer worker consumes. It carries the
// plaintext code because the worker composes the mail; the topic must
// be treated as sensitive and retention kept at or below the OTP TTL.
type deliveryJob struct {
	Address   string    `json:"address"`
	Code      string    `json:"code"`
	Channel   string    `json:"channel"`
	CreatedAt time.Time `json:"created_at"`
}

// KafkaNotifier publishes OTP delivery jobs instead of sending mail
// inline, keeping SMTP latency out of the login path.
type KafkaNotifier struct {
	producer *client.KafkaProducer
	topic    string
	logger   *zap.Logger
}

func NewKafkaNotifier(producer *client.KafkaProducer, topic string, logger *zap.Logger) (*KafkaNotifier, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if logger == nil {
		logger = util.Get()
	}
	return &KafkaNotifier{producer: producer, topic: topic, logger: logger}, nil
}

func (n *KafkaNotifier) SendOTP(ctx context.Context, address, code string) error {
	job := deliveryJob{
		Address:   address,
		Code:      code,
		Channel:   "email",
		CreatedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery job: %w", err)
	}

	if err := n.producer.ProduceMessage(ctx, n.topic, []byte(address), payload, map[string]string{
		"content-type": "application/json",
	}); err != nil {
		n.logger.Error("Failed to publish OTP delivery job", zap.Error(err))
		return fmt.Errorf("failed to publish OTP delivery job: %w", err)
	}

	n.logger.Info("OTP delivery job published", zap.String("topic", n.topic))
	return nil
}
