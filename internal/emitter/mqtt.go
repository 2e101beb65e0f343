// Package emitter publishes session status and preview composites to
// an MQTT broker. Entirely optional: every failure here is logged and
// swallowed, never fatal to the capture session.
package emitter

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/preview"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/types"
)

// Config identifies the broker and topics.
type Config struct {
	Broker       string
	ClientID     string
	StatusTopic  string
	PreviewTopic string
}

// Emitter is a thin publisher over paho MQTT.
type Emitter struct {
	cfg    Config
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// New creates an emitter; call Connect before publishing.
func New(cfg Config) *Emitter {
	return &Emitter{cfg: cfg}
}

// Connect establishes the broker connection with auto-reconnect.
func (e *Emitter) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("mqtt connection established", "broker", e.cfg.Broker, "client_id", e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect", "error", err, "broker", e.cfg.Broker)
	}

	e.client = mqtt.NewClient(opts)

	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()
	return nil
}

// PublishStatus sends a msgpack-encoded session report. QoS 1: the
// end-of-session report should survive a flaky link.
func (e *Emitter) PublishStatus(report types.SessionReport) {
	if !e.isConnected() {
		e.countError()
		slog.Debug("mqtt not connected, status dropped", "session", report.SessionID)
		return
	}

	payload, err := msgpack.Marshal(report)
	if err != nil {
		e.countError()
		slog.Error("encode session report", "error", err)
		return
	}

	token := e.client.Publish(e.cfg.StatusTopic, 1, false, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() == nil {
		e.countPublished()
		return
	}
	e.countError()
	slog.Warn("publish session status failed", "topic", e.cfg.StatusTopic, "error", token.Error())
}

// PreviewSink returns a preview.Sink that publishes JPEG composites.
// QoS 0, fire-and-forget: a lost preview frame is worthless a tick
// later anyway.
func (e *Emitter) PreviewSink() preview.Sink {
	return func(composite image.Image, tick uint64) {
		if !e.isConnected() {
			return
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, composite, &jpeg.Options{Quality: 75}); err != nil {
			e.countError()
			slog.Warn("encode preview composite", "tick", tick, "error", err)
			return
		}
		e.client.Publish(e.cfg.PreviewTopic, 0, false, buf.Bytes())
		e.countPublished()
	}
}

// Close disconnects from the broker. Idempotent.
func (e *Emitter) Close() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
	}
	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
}

func (e *Emitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *Emitter) countPublished() {
	e.mu.Lock()
	e.published++
	e.mu.Unlock()
}

func (e *Emitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
