package transport

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MessageHandler receives one raw gateway message. The arrival time is taken
// when the broker delivers the message, since the gateway does not embed a
// reliable timestamp in the payload.
type MessageHandler func(ctx context.Context, topic, payload string, arrival time.Time)

// Config for the MQTT connection to the broker the gateway publishes to.
type Config struct {
	Broker   string
	Username string
	Password string
	ClientID string
	QoS      byte
}

// Client wraps the paho connection. One client serves both the collector
// subscription and the simulator's publishing.
type Client struct {
	client mqtt.Client
	qos    byte
}

func New(cfg Config) *Client {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "heatmon-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false)

	opts.OnConnect = func(c mqtt.Client) {
		logrus.WithField("broker", cfg.Broker).Info("connected to mqtt broker")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logrus.WithError(err).Warn("mqtt connection lost")
	}

	return &Client{
		client: mqtt.NewClient(opts),
		qos:    cfg.QoS,
	}
}

// Connect blocks until the broker accepts the connection or ctx is done.
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("error connecting to mqtt broker: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers handler for topic. The handler runs on paho's
// delivery goroutines; ctx is forwarded so handlers stop doing work once
// the application shuts down.
func (c *Client) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	token := c.client.Subscribe(topic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(ctx, msg.Topic(), string(msg.Payload()), time.Now())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("error subscribing to %s: %w", topic, err)
	}
	logrus.WithField("topic", topic).Info("subscribed")
	return nil
}

// Publish sends one message and waits for the broker to accept it.
func (c *Client) Publish(topic, payload string) error {
	token := c.client.Publish(topic, c.qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("error publishing to %s: %w", topic, err)
	}
	return nil
}

// Disconnect flushes in-flight messages and closes the connection.
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

// GatewayTopic builds the wildcard subscription for one gateway's heat pump
// registers.
func GatewayTopic(gatewayID string) string {
	return gatewayID + "/HP/#"
}

// RegisterTopic builds the publish topic for one register, status-class
// registers go under the STATUS subtree.
func RegisterTopic(gatewayID, registerID string, status bool) string {
	if status {
		return fmt.Sprintf("%s/HP/STATUS/%s", gatewayID, registerID)
	}
	return fmt.Sprintf("%s/HP/%s", gatewayID, registerID)
}
