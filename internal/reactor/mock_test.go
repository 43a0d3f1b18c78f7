package reactor

import (
	"errors"
	"sync"
)

var testSpecs = []ChannelSpec{
	{Name: "temp", Title: "Temperature", Unit: "°C", Min: 20, Max: 45, Step: 0.5, Default: 37.0},
	{Name: "ph", Title: "pH Level", Min: 0, Max: 14, Step: 0.1, Default: 7.0},
	{Name: "rpm", Title: "Agitation", Unit: " RPM", Min: 0, Max: 300, Step: 10, Default: 100, Integer: true},
}

// mockPublish records a single publish call.
type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// mockTransport implements Transport for testing.
type mockTransport struct {
	mu        sync.Mutex
	published []mockPublish
	err       error
}

func (m *mockTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *mockTransport) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

func (m *mockTransport) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

var errBrokerDown = errors.New("broker down")
