package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/tendering/core/events"
	"github.com/kilianp07/tendering/core/notify"
)

func startMosquitto(ctx context.Context, t *testing.T) string {
	t.Helper()
	conf := "listener 1883\nallow_anonymous true\npersistence false\n"
	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o644))

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			HostFilePath:      path,
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0o644,
		}},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("container start: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })
	host, err := cont.Host(ctx)
	require.NoError(t, err)
	port, err := cont.MappedPort(ctx, "1883")
	require.NoError(t, err)
	return fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

func TestPublishToMosquitto(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx := context.Background()
	broker := startMosquitto(ctx, t)

	received := make(chan notify.Envelope, 1)
	sub := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("consumer"))
	token := sub.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	defer sub.Disconnect(100)
	token = sub.Subscribe("tendering/events/#", 1, func(_ paho.Client, m paho.Message) {
		var env notify.Envelope
		if json.Unmarshal(m.Payload(), &env) == nil {
			received <- env
		}
	})
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())

	p, err := NewPublisher(Config{Broker: broker, ClientID: "engine", QoS: 1})
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Publish(ctx, events.TenderAwarded{TenderID: "T1", CarrierID: "B", Amount: 2450}))

	select {
	case env := <-received:
		require.Equal(t, "tender_awarded", env.Event)
		require.Equal(t, "T1", env.TenderID)
	case <-time.After(5 * time.Second):
		t.Fatal("event not received")
	}
}
