package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeSubscriber struct {
	mu           sync.Mutex
	subscribeErr error
	topic        string
	callback     mqtt.MessageHandler
	subscribed   chan struct{}
	unsubscribed bool
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subscribed: make(chan struct{})}
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return doneToken{err: f.subscribeErr}
	}
	f.topic = topic
	f.callback = cb
	close(f.subscribed)
	return doneToken{}
}

func (f *fakeSubscriber) Unsubscribe(...string) mqtt.Token {
	f.mu.Lock()
	f.unsubscribed = true
	f.mu.Unlock()
	return doneToken{}
}

func (f *fakeSubscriber) deliver(topic, payload string) {
	f.mu.Lock()
	cb := f.callback
	f.mu.Unlock()
	cb(nil, fakeMessage{topic: topic, payload: []byte(payload)})
}

func TestMQTTSource_Run(t *testing.T) {
	sub := newFakeSubscriber()
	src := NewMQTTSource(sub, MQTTConfig{}, nil)
	assert.Equal(t, "mqtt", src.Name())

	var mu sync.Mutex
	var got []string
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- src.Run(ctx, func(_ context.Context, s *models.Sample) error {
			mu.Lock()
			got = append(got, s.PatientID)
			mu.Unlock()
			return nil
		})
	}()

	<-sub.subscribed
	assert.Equal(t, "vitalwatch/vitals/#", sub.topic)

	sub.deliver("vitalwatch/vitals/PAT001", `{"patientId":"PAT001","heartRate":72}`)
	sub.deliver("vitalwatch/vitals/bad", `{`)
	sub.deliver("vitalwatch/vitals/PAT002", `{"patientId":"PAT002","temperature":103.5}`)

	cancel()
	require.NoError(t, <-errc)

	assert.Equal(t, []string{"PAT001", "PAT002"}, got)
	assert.True(t, sub.unsubscribed)
}

func TestMQTTSource_SubscribeError(t *testing.T) {
	sub := newFakeSubscriber()
	sub.subscribeErr = errors.New("not authorized")
	src := NewMQTTSource(sub, MQTTConfig{Topic: "wards/+/vitals"}, nil)

	err := src.Run(context.Background(), func(context.Context, *models.Sample) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wards/+/vitals")
}
