// ABOUTME: NATS client for operational catalog eventing
// ABOUTME: Queue-group refresh commands in, catalog update announcements out

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fleetlens-io/fleetlens/internal/observability"
	"github.com/fleetlens-io/fleetlens/internal/types"
)

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	// NATS server URL. Empty disables eventing entirely.
	URL string

	// CommandSubject carries refresh commands.
	CommandSubject string

	// UpdatedSubject carries catalog update announcements.
	UpdatedSubject string

	// QueueGroup name for load balancing refresh commands.
	QueueGroup string

	// Connection name for identification.
	Name string

	// Reconnect settings.
	MaxReconnects int
	ReconnectWait time.Duration

	// Timeout bounds the handling of one refresh command.
	Timeout time.Duration
}

// DefaultNATSConfig returns a configuration with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:            "nats://localhost:4222",
		CommandSubject: "fleetlens.catalog.refresh",
		UpdatedSubject: "fleetlens.catalog.updated",
		QueueGroup:     "catalog-refreshers",
		Name:           "fleetlens",
		MaxReconnects:  -1, // Unlimited.
		ReconnectWait:  2 * time.Second,
		Timeout:        30 * time.Second,
	}
}

// Client wraps the NATS connection and the refresh-command subscription.
type Client struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	handler *Handler
	config  NATSConfig
	logger  *slog.Logger
}

// NewClient creates a new NATS client with the given configuration.
func NewClient(cfg NATSConfig, handler *Handler, logger *slog.Logger) (*Client, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		handler: handler,
		config:  cfg,
		logger:  logger,
	}, nil
}

// Connect establishes the NATS connection.
func (c *Client) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name(c.config.Name),
		nats.MaxReconnects(c.config.MaxReconnects),
		nats.ReconnectWait(c.config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			c.logger.Warn("NATS disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			c.logger.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			c.logger.Error("NATS error",
				slog.Any("error", err),
				slog.String("subject", sub.Subject),
			)
		}),
	}

	conn, err := nats.Connect(c.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	c.conn = conn
	c.logger.Info("connected to NATS",
		slog.String("url", conn.ConnectedUrl()),
		slog.String("server_id", conn.ConnectedServerId()),
	)

	return nil
}

// Subscribe starts listening for refresh commands.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("not connected to NATS")
	}

	sub, err := c.conn.QueueSubscribe(c.config.CommandSubject, c.config.QueueGroup, func(msg *nats.Msg) {
		c.handleRefreshCommand(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	c.sub = sub
	c.logger.Info("subscribed to NATS",
		slog.String("subject", c.config.CommandSubject),
		slog.String("queue", c.config.QueueGroup),
	)

	return nil
}

// handleRefreshCommand processes one incoming refresh command.
func (c *Client) handleRefreshCommand(ctx context.Context, msg *nats.Msg) {
	ctx, span := observability.StartSpan(ctx, "events.handle_refresh")
	defer span.End()

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	start := time.Now()

	var req RefreshRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		c.logger.Error("failed to parse refresh command",
			slog.Any("error", err),
			slog.String("data", string(msg.Data)),
		)
		c.replyError(msg, "", "invalid request format: "+err.Error())
		return
	}

	resp := c.handler.ProcessRequest(ctx, req)

	if msg.Reply != "" {
		respData, err := json.Marshal(resp)
		if err != nil {
			c.logger.Error("failed to marshal response",
				slog.Any("error", err),
				slog.String("request_id", req.RequestID),
			)
			return
		}
		if err := msg.Respond(respData); err != nil {
			c.logger.Error("failed to send reply",
				slog.Any("error", err),
				slog.String("request_id", req.RequestID),
			)
			return
		}
	}

	c.logger.Info("processed refresh command",
		slog.String("request_id", req.RequestID),
		slog.String("data_type", req.DataType),
		slog.String("status", resp.Status),
		slog.Duration("duration", time.Since(start)),
	)
}

// replyError sends an error response when a reply subject is present.
func (c *Client) replyError(msg *nats.Msg, requestID, errMsg string) {
	if msg.Reply == "" {
		return
	}

	resp := RefreshResponse{
		RequestID: requestID,
		Status:    "error",
		Error:     errMsg,
	}

	respData, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("failed to marshal error response", slog.Any("error", err))
		return
	}

	if err := msg.Respond(respData); err != nil {
		c.logger.Error("failed to send error reply", slog.Any("error", err))
	}
}

// PublishUpdated announces a successful catalog refresh. Safe to call
// from the catalog service's OnRefreshed hook.
func (c *Client) PublishUpdated(dataType types.DataType, count int, took time.Duration) {
	if c.conn == nil {
		return
	}

	event := CatalogUpdated{
		DataType:    string(dataType),
		Count:       count,
		DurationMS:  took.Milliseconds(),
		RefreshedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("failed to marshal catalog update", slog.Any("error", err))
		return
	}

	if err := c.conn.Publish(c.config.UpdatedSubject, data); err != nil {
		c.logger.Warn("failed to publish catalog update",
			slog.Any("error", err),
			slog.String("data_type", string(dataType)),
		)
	}
}

// Close drains the subscription and closes the connection.
func (c *Client) Close() error {
	if c.sub != nil {
		if err := c.sub.Unsubscribe(); err != nil {
			c.logger.Warn("failed to unsubscribe", slog.Any("error", err))
		}
	}

	if c.conn != nil {
		c.conn.Close()
	}

	return nil
}

// IsConnected returns true if connected to NATS.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}
