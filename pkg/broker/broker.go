package broker

import (
	"context"
	"sync"

	mqttv2 "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// Start runs an embedded MQTT broker for deployments without an external
// one, typically a single-box install next to the gateway. The broker
// accepts any client; put a real broker with auth in front for anything
// beyond a LAN.
func Start(ctx context.Context, wg *sync.WaitGroup, address string) (*mqttv2.Server, error) {
	server := mqttv2.New(&mqttv2.Options{
		InlineClient: true,
	})

	_ = server.AddHook(new(auth.AllowHook), nil)

	tcp := listeners.NewTCP(listeners.Config{ID: "t1", Address: address})
	if err := server.AddListener(tcp); err != nil {
		return nil, err
	}

	if err := server.Serve(); err != nil {
		return nil, err
	}

	wg.Add(1)
	go func() {
		<-ctx.Done()
		server.Close()
		wg.Done()
	}()
	return server, nil
}
