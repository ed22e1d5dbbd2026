package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"ble-locate.klederson.com/internal/bluetooth"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTopicPrefix = "ble-locate"
	DefaultClientID    = "ble-locate"

	publishTimeout = 5 * time.Second
)

// PublisherConfig holds the MQTT connection settings.
type PublisherConfig struct {
	Broker      string // e.g. tcp://localhost:1883
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retain      bool
}

func (c PublisherConfig) withDefaults() PublisherConfig {
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	c.TopicPrefix = strings.TrimRight(c.TopicPrefix, "/")
	return c
}

// Publisher sends device snapshots and positions to an MQTT broker.
type Publisher struct {
	client MQTT.Client
	config PublisherConfig
	log    *logrus.Entry

	mu          sync.Mutex
	lastPublish time.Time
}

// NewPublisher creates a publisher for cfg. Call Connect before publishing.
func NewPublisher(cfg PublisherConfig, log *logrus.Entry) *Publisher {
	cfg = cfg.withDefaults()
	p := &Publisher{config: cfg, log: log.WithField("component", "mqtt")}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOnConnectHandler(func(MQTT.Client) {
		p.log.WithField("broker", cfg.Broker).Info("MQTT connection established")
	})
	opts.SetConnectionLostHandler(func(_ MQTT.Client, err error) {
		p.log.WithError(err).Warn("MQTT connection lost")
	})

	p.client = MQTT.NewClient(opts)
	return p
}

func newPublisherWithClient(client MQTT.Client, cfg PublisherConfig, log *logrus.Entry) *Publisher {
	return &Publisher{client: client, config: cfg.withDefaults(), log: log}
}

// Connect starts the connection. With connect-retry enabled the client keeps
// trying in the background, so only a failure within the timeout is reported.
func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return errors.Wrapf(token.Error(), "connect to MQTT broker %s", p.config.Broker)
	}
	return nil
}

// Disconnect closes the connection after letting in-flight work finish.
func (p *Publisher) Disconnect() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

// DeviceTopic returns the per-device state topic, e.g.
// "ble-locate/device/aabbccddeeff".
func DeviceTopic(prefix, address string) string {
	id := strings.ReplaceAll(bluetooth.NormalizeAddress(address), ":", "")
	return fmt.Sprintf("%s/device/%s", prefix, id)
}

// PositionsTopic returns the topic carrying all located positions.
func PositionsTopic(prefix string) string {
	return prefix + "/positions"
}

// PublishSnapshots publishes each device's snapshot on its own topic. It
// returns the first error but still attempts every device.
func (p *Publisher) PublishSnapshots(snaps []bluetooth.DeviceSnapshot) error {
	if !p.client.IsConnected() {
		return nil
	}
	var first error
	for _, s := range snaps {
		if err := p.publishJSON(DeviceTopic(p.config.TopicPrefix, s.Address), s); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type positionsPayload struct {
	Timestamp time.Time                  `json:"timestamp"`
	Positions map[string]bluetooth.Point `json:"positions"`
}

// PublishPositions publishes the located positions as one message.
func (p *Publisher) PublishPositions(positions map[string]bluetooth.Point, at time.Time) error {
	if !p.client.IsConnected() {
		return nil
	}
	return p.publishJSON(PositionsTopic(p.config.TopicPrefix), positionsPayload{
		Timestamp: at,
		Positions: positions,
	})
}

func (p *Publisher) publishJSON(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal MQTT payload")
	}

	token := p.client.Publish(topic, p.config.QoS, p.config.Retain, data)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "publish to %s", topic)
	}

	p.mu.Lock()
	p.lastPublish = time.Now()
	p.mu.Unlock()
	p.log.WithFields(logrus.Fields{"topic": topic, "bytes": len(data)}).Debug("MQTT message published")
	return nil
}

// LastPublish returns when the last message was published.
func (p *Publisher) LastPublish() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPublish
}
