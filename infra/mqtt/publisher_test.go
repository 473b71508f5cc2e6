package mqtt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/tendering/core/events"
	"github.com/kilianp07/tendering/core/factory"
	"github.com/kilianp07/tendering/core/notify"
)

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient implements pahoClient for tests.
type mockClient struct {
	mu          sync.Mutex
	opts        *paho.ClientOptions
	connected   bool
	published   []published
	publishErrs []error
}

func (m *mockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockClient) Connect() paho.Token {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(nil)
	}
	return &dummyToken{}
}

func (m *mockClient) Disconnect(uint) {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	var b []byte
	switch v := payload.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	}
	m.published = append(m.published, published{topic: topic, qos: qos, retained: retained, payload: b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}

func (m *mockClient) messages() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.published...)
}

type dummyToken struct{ err error }

func (d *dummyToken) Wait() bool                     { return true }
func (d *dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d *dummyToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (d *dummyToken) Error() error { return d.err }

func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	prev := newMQTTClient
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = prev })
}

func TestPublishEnvelopeAndTopic(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	p, err := NewPublisher(Config{Broker: "tcp://localhost:1883", QoS: 1, TopicPrefix: "freight/events/"})
	require.NoError(t, err)
	p.now = func() time.Time { return time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC) }

	ev := events.TenderAwarded{TenderID: "T1", CarrierID: "B", BidID: "b2", Amount: 2450, Automatic: true}
	require.NoError(t, p.Publish(context.Background(), ev))

	msgs := mc.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "freight/events/tender_awarded/T1", msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)

	var env notify.Envelope
	require.NoError(t, json.Unmarshal(msgs[0].payload, &env))
	assert.NotEmpty(t, env.MessageID)
	assert.Equal(t, "tender_awarded", env.Event)
	assert.Equal(t, "T1", env.TenderID)
	var got events.TenderAwarded
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "B", got.CarrierID)
	assert.Equal(t, 2450.0, got.Amount)
}

func TestPublishRetries(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), nil}}
	withMock(t, mc)
	p, err := NewPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), events.TenderExpired{TenderID: "T2"}))
	assert.Len(t, mc.messages(), 2)
}

func TestPublishGivesUp(t *testing.T) {
	fail := errors.New("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail, fail}}
	withMock(t, mc)
	p, err := NewPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 2, BackoffMS: 1})
	require.NoError(t, err)

	err = p.Publish(context.Background(), events.TenderRejected{TenderID: "T3", Actor: "ops"})
	assert.ErrorIs(t, err, fail)
	assert.Len(t, mc.messages(), 3)
}

func TestPublishHonoursContext(t *testing.T) {
	mc := &mockClient{publishErrs: []error{errors.New("net fail")}}
	withMock(t, mc)
	p, err := NewPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 3, BackoffMS: 60000})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = p.Publish(ctx, events.TenderExpired{TenderID: "T4"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, mc.messages(), 1)
}

func TestPublishWhenDisconnected(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	p, err := NewPublisher(Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, err)
	mc.Disconnect(0)

	err = p.Publish(context.Background(), events.TenderExpired{TenderID: "T5"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestStatusTopicAndWill(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	p, err := NewPublisher(Config{Broker: "tcp://localhost:1883", StatusTopic: "tendering/status"})
	require.NoError(t, err)

	assert.True(t, mc.opts.WillEnabled)
	assert.Equal(t, "tendering/status", mc.opts.WillTopic)
	assert.Equal(t, "offline", string(mc.opts.WillPayload))

	p.Close()
	msgs := mc.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "online", string(msgs[0].payload))
	assert.Equal(t, "offline", string(msgs[1].payload))
	assert.True(t, msgs[1].retained)
}

func TestRegisteredAsNotifyPublisher(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	pub, err := notify.NewPublisher([]factory.ModuleConfig{{Type: "mqtt", Conf: map[string]any{"broker": "tcp://localhost:1883", "qos": 2}}}, nil)
	require.NoError(t, err)
	p, ok := pub.(*Publisher)
	require.True(t, ok)
	assert.Equal(t, byte(2), p.cfg.QoS)
	assert.Equal(t, "tendering/events", p.cfg.TopicPrefix)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Broker: "tcp://x:1883", QoS: 3}.Validate())
	assert.NoError(t, Config{Broker: "tcp://x:1883", QoS: 1}.Validate())
}

// generateCert writes a self-signed certificate used as both client cert and CA.
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0o600))
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, tlsCfg.Certificates)
	assert.NotNil(t, tlsCfg.RootCAs)

	_, err = Config{UseTLS: true}.LoadTLSConfig()
	assert.Error(t, err)
}
