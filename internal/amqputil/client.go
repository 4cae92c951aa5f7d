// Package amqputil opens short-lived AMQP connections for publishing and
// receiving on a single declared queue.
package amqputil

import (
	"context"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

type Config struct {
	URL   string `env:"URL" validate:"omitempty,url"`
	Queue string `env:"QUEUE" envDefault:"sbomer.generation.finished" validate:"required"`
}

type Client struct {
	connectionString string // required
	queue            string // required
}

func NewClient(connectionString, queue string) *Client {
	return &Client{
		connectionString: connectionString,
		queue:            queue,
	}
}

// Publish proxies [amqp091.Channel.PublishWithContext] to the default
// exchange with the client's queue as the routing key.
func (cli *Client) Publish(ctx context.Context, msg amqp091.Publishing) error {
	conn, ch, err := cli.open()
	if err != nil {
		return fmt.Errorf("amqputil.Client: %w", err)
	}
	defer conn.Close()
	defer ch.Close()

	err = ch.PublishWithContext(ctx,
		"",        // exchange
		cli.queue, // routing key
		false,     // mandatory
		false,     // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("amqputil.Client: %w", err)
	}
	return nil
}

// Receive waits for one message and acknowledges it on delivery.
func (cli *Client) Receive(ctx context.Context) (*amqp091.Delivery, error) {
	conn, ch, err := cli.open()
	if err != nil {
		return nil, fmt.Errorf("amqputil.Client: %w", err)
	}
	defer conn.Close()
	defer ch.Close()

	msgs, err := ch.Consume(
		cli.queue, // queue
		"",        // consumer
		true,      // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return nil, fmt.Errorf("amqputil.Client: %w", err)
	}

	select {
	case msg, ok := <-msgs:
		if !ok {
			return nil, fmt.Errorf("amqputil.Client: delivery channel closed")
		}
		return &msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (cli *Client) open() (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := amqp091.Dial(cli.connectionString)
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	_, err = ch.QueueDeclare(
		cli.queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}
