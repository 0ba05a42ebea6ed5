package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds RabbitMQ connection configuration
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	ExchangeName       string
	ExchangeType       string
	ExchangeDurable    bool
	QueueName          string
	QueueDurable       bool
	RoutingKey         string
	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	ConnectionTimeout  time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
}

// Nudge tells idle worker pollers that new work exists. It is purely an
// optimization: claiming is decided by the job store's claim predicate,
// so a lost or duplicated nudge is harmless.
type Nudge struct {
	JobID   string `json:"job_id"`
	JobType string `json:"job_type"`
}

// Client represents a RabbitMQ client
type Client struct {
	config      *Config
	conn        *amqp.Connection
	channel     *amqp.Channel
	logger      *slog.Logger
	isConnected bool
}

// NewClient connects, declares the nudge exchange and queue, and binds
// them. Connection attempts retry per config.
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{config: config, logger: logger}

	url := fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		config.User, config.Password, config.Host, config.Port, config.VHost)

	attempts := config.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	interval := config.RetryInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			logger.Warn("Retrying RabbitMQ connection",
				slog.Int("attempt", i+1),
				slog.Int("max_attempts", attempts),
			)
			time.Sleep(interval)
		}

		client.conn, err = amqp.DialConfig(url, amqp.Config{
			Heartbeat: config.Heartbeat,
			Dial:      amqp.DefaultDial(config.ConnectionTimeout),
		})
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	client.channel, err = client.conn.Channel()
	if err != nil {
		client.conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := client.declare(); err != nil {
		client.Close()
		return nil, err
	}

	client.isConnected = true
	logger.Info("Connected to RabbitMQ",
		slog.String("exchange", config.ExchangeName),
		slog.String("queue", config.QueueName),
	)

	return client, nil
}

func (c *Client) declare() error {
	exchangeType := c.config.ExchangeType
	if exchangeType == "" {
		exchangeType = "direct"
	}

	if err := c.channel.ExchangeDeclare(
		c.config.ExchangeName,
		exchangeType,
		c.config.ExchangeDurable,
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := c.channel.QueueDeclare(
		c.config.QueueName,
		c.config.QueueDurable,
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := c.channel.QueueBind(
		c.config.QueueName,
		c.config.RoutingKey,
		c.config.ExchangeName,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	return nil
}

// PublishNudge publishes a work-available signal with retry and
// exponential backoff. Failures are logged but callers may ignore them:
// pollers find the job on their next tick regardless.
func (c *Client) PublishNudge(ctx context.Context, n Nudge) error {
	if !c.isConnected {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal nudge: %w", err)
	}

	maxRetries := c.config.PublishRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := c.config.PublishRetryDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	mult := c.config.PublishBackoffMult
	if mult <= 1 {
		mult = 2
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := c.channel.PublishWithContext(
			ctx,
			c.config.ExchangeName,
			c.config.RoutingKey,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
			},
		)
		if err == nil {
			c.logger.Debug("Nudge published",
				slog.String("job_id", n.JobID),
				slog.String("job_type", n.JobType),
			)
			return nil
		}

		lastErr = err
		if attempt < maxRetries {
			backoffDelay := publishBackoff(baseDelay, mult, attempt)
			c.logger.Warn("Failed to publish nudge, retrying",
				slog.Int("attempt", attempt+1),
				slog.Duration("retry_after", backoffDelay),
				slog.Any("error", err),
			)
			time.Sleep(backoffDelay)
		}
	}

	return fmt.Errorf("failed to publish nudge after %d attempts: %w", maxRetries+1, lastErr)
}

// publishBackoff returns the delay before retrying attempt (zero-based):
// base scaled by mult^attempt.
func publishBackoff(base time.Duration, mult float64, attempt int) time.Duration {
	return time.Duration(float64(base) * math.Pow(mult, float64(attempt)))
}

// Consume starts receiving nudges. Deliveries are auto-acked: a nudge
// carries no state the system depends on.
func (c *Client) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	if !c.isConnected {
		return nil, fmt.Errorf("not connected to RabbitMQ")
	}

	deliveries, err := c.channel.Consume(
		c.config.QueueName,
		consumerTag,
		true,  // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Consuming nudges from RabbitMQ",
		slog.String("queue", c.config.QueueName),
		slog.String("consumer_tag", consumerTag),
	)

	return deliveries, nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	return c.isConnected && c.conn != nil && !c.conn.IsClosed()
}

// Close closes the RabbitMQ connection
func (c *Client) Close() error {
	c.isConnected = false

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	return nil
}
