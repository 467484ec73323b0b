// Package mqtt feeds device payloads published over MQTT into the ingest service.
package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"thermo-cloud/internal/observability/metrics"
	readingsapp "thermo-cloud/internal/readings/application"
	readings "thermo-cloud/internal/readings/domain"
)

const (
	defaultQoS            = 1
	defaultSubmitTimeout  = 5 * time.Second
	connectTimeout        = 10 * time.Second
	disconnectQuiesceMs   = 250
	defaultClientIDPrefix = "thermo-cloud"
)

// Submitter stores one submission.
type Submitter interface {
	Submit(ctx context.Context, sub readingsapp.Submission, transport string) (readings.Reading, error)
}

// Config describes the broker connection.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
}

// Subscriber consumes readings from an MQTT topic.
type Subscriber struct {
	cfg       Config
	submitter Submitter
	logger    *slog.Logger
	timeout   time.Duration
	client    paho.Client
}

// NewSubscriber validates cfg. Call Start to connect.
func NewSubscriber(cfg Config, submitter Submitter, logger *slog.Logger) (*Subscriber, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: empty broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt: empty topic")
	}
	if submitter == nil {
		return nil, errors.New("mqtt: nil submitter")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = defaultClientIDPrefix
	}
	if cfg.QoS == 0 {
		cfg.QoS = defaultQoS
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{cfg: cfg, submitter: submitter, logger: logger, timeout: defaultSubmitTimeout}, nil
}

// Start connects and subscribes. The subscription is renewed on every reconnect.
func (s *Subscriber) Start() error {
	opts := paho.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetOnConnectHandler(func(client paho.Client) {
		token := client.Subscribe(s.cfg.Topic, s.cfg.QoS, s.HandleMessage)
		if token.Wait() && token.Error() != nil {
			s.logger.Error("mqtt subscribe failed", "topic", s.cfg.Topic, "error", token.Error())
			return
		}
		s.logger.Info("mqtt subscribed", "broker", s.cfg.Broker, "topic", s.cfg.Topic)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.logger.Warn("mqtt connection lost", "error", err)
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt: connect %s: %w", s.cfg.Broker, token.Error())
	}
	s.client = client
	return nil
}

// HandleMessage decodes a payload and submits it. Invalid payloads are logged and dropped.
func (s *Subscriber) HandleMessage(_ paho.Client, msg paho.Message) {
	var sub readingsapp.Submission
	decoder := json.NewDecoder(bytes.NewReader(msg.Payload()))
	decoder.UseNumber()
	if err := decoder.Decode(&sub); err != nil {
		metrics.IncIngestError("invalid_json")
		s.logger.Warn("mqtt payload rejected", "topic", msg.Topic(), "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	reading, err := s.submitter.Submit(ctx, sub, metrics.TransportMQTT)
	if err != nil {
		if errors.Is(err, readings.ErrValidation) {
			s.logger.Warn("mqtt reading rejected", "topic", msg.Topic(), "error", err)
			return
		}
		s.logger.Error("mqtt reading not stored", "topic", msg.Topic(), "error", err)
		return
	}
	s.logger.Debug("mqtt reading stored", "topic", msg.Topic(), "id", reading.ID)
}

// Close unsubscribes and disconnects.
func (s *Subscriber) Close() {
	if s == nil || s.client == nil {
		return
	}
	if token := s.client.Unsubscribe(s.cfg.Topic); token.WaitTimeout(time.Second) && token.Error() != nil {
		s.logger.Warn("mqtt unsubscribe failed", "error", token.Error())
	}
	s.client.Disconnect(disconnectQuiesceMs)
}
