package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/reforgerwatch/reforgerwatch/internal/domain"
)

// Subjects published by the engine
const (
	SubjectSnapshot    = "reforgerwatch.snapshot"
	SubjectLeaderboard = "reforgerwatch.leaderboard"
)

const readyTimeout = 5 * time.Second

// Bus runs an embedded NATS server so out-of-process presentation
// collaborators (Discord bots, dashboards) can subscribe to snapshots without
// linking against the engine.
type Bus struct {
	srv *server.Server
	nc  *nats.Conn
}

// Start launches the embedded server and connects the engine's client to it.
// port -1 picks a random free port.
func Start(listenAddr string, port int) (*Bus, error) {
	srv, err := server.NewServer(&server.Options{
		Host:   listenAddr,
		Port:   port,
		NoSigs: true,
		NoLog:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}

	go srv.Start()
	if !srv.ReadyForConnections(readyTimeout) {
		srv.Shutdown()
		return nil, fmt.Errorf("nats server not ready after %v", readyTimeout)
	}

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("connecting to embedded nats: %w", err)
	}

	return &Bus{srv: srv, nc: nc}, nil
}

// ClientURL returns the URL external subscribers connect to
func (b *Bus) ClientURL() string {
	return b.srv.ClientURL()
}

// PublishSnapshot pushes a status snapshot to all subscribers
func (b *Bus) PublishSnapshot(snap *domain.StatusSnapshot) error {
	return b.publish(SubjectSnapshot, domain.Event{
		Type:      domain.EventSnapshot,
		Timestamp: time.Now().UTC(),
		Data:      snap,
	})
}

// PublishLeaderboard pushes an updated top killers list to all subscribers
func (b *Bus) PublishLeaderboard(entries []domain.LeaderboardEntry) error {
	return b.publish(SubjectLeaderboard, domain.Event{
		Type:      domain.EventLeaderboard,
		Timestamp: time.Now().UTC(),
		Data:      domain.ServerStatistics{TopKillers: entries},
	})
}

func (b *Bus) publish(subject string, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return b.nc.Publish(subject, data)
}

// Subscribe delivers raw event payloads for a subject
func (b *Bus) Subscribe(subject string, handler func([]byte)) (*nats.Subscription, error) {
	return b.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// Close disconnects the client and shuts the embedded server down
func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
	if b.srv != nil {
		b.srv.Shutdown()
		b.srv.WaitForShutdown()
	}
}
