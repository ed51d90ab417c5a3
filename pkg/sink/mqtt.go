package sink

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig holds broker settings for the live telemetry sink.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
}

// DefaultMQTTConfig returns settings for a broker on localhost.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:      "tcp://localhost:1883",
		ClientID:    "seu-scanner",
		TopicPrefix: "seu",
		QoS:         1,
		Timeout:     5 * time.Second,
	}
}

// publisher is the part of mqtt.Client the sink uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes every record as JSON on a per-device topic.
type MQTT struct {
	client  publisher
	native  mqtt.Client
	prefix  string
	board   int
	runID   string
	qos     byte
	timeout time.Duration
}

type mqttPayload struct {
	RunID string `json:"run_id"`
	Board int    `json:"board"`
	Record
}

// DialMQTT connects to the broker and returns a sink that owns the client.
func DialMQTT(cfg MQTTConfig, board int, runID string) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("sink: connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}

	m := NewMQTT(client, cfg, board, runID)
	m.native = client
	return m, nil
}

// NewMQTT wraps an existing client. The caller keeps ownership of it.
func NewMQTT(client publisher, cfg MQTTConfig, board int, runID string) *MQTT {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTT{
		client:  client,
		prefix:  cfg.TopicPrefix,
		board:   board,
		runID:   runID,
		qos:     cfg.QoS,
		timeout: timeout,
	}
}

// Topic returns the topic a record is published on.
func (m *MQTT) Topic(rec Record) string {
	return fmt.Sprintf("%s/board/%d/bank/%d/eeprom/%d", m.prefix, m.board, rec.Bank, rec.Slot)
}

func (m *MQTT) Append(rec Record) error {
	payload, err := json.Marshal(mqttPayload{RunID: m.runID, Board: m.board, Record: rec})
	if err != nil {
		return fmt.Errorf("sink: marshal record: %w", err)
	}

	token := m.client.Publish(m.Topic(rec), m.qos, false, payload)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("sink: publish to %s timed out", m.Topic(rec))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("sink: publish to %s: %w", m.Topic(rec), err)
	}
	return nil
}

func (m *MQTT) Close() error {
	if m.native != nil {
		m.native.Disconnect(250)
		m.native = nil
	}
	return nil
}
