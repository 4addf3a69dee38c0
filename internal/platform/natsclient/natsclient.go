// Package natsclient wraps the NATS JetStream connection used for
// notification events.
package natsclient

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Client is a thin JetStream publishing client.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// Connect dials the NATS server and initializes the JetStream context.
func Connect(url string) (*Client, error) {
	conn, err := nats.Connect(url, nats.Name("be-hr-approvals"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return &Client{conn: conn, js: js}, nil
}

// Publish sends data to subject, waiting for the stream acknowledgement.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.js.Publish(ctx, subject, data)
	return err
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
