package eventbus

import (
	"fmt"
	"time"

	"github.com/annel0/descent/internal/logging"
	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer встроенный сервер NATS для однопроцессного развёртывания и тестов
type EmbeddedServer struct {
	ns *server.Server
}

// StartEmbeddedServer запускает сервер NATS в текущем процессе.
// port 0 выбирает случайный свободный порт; storeDir != "" включает JetStream.
func StartEmbeddedServer(host string, port int, storeDir string) (*EmbeddedServer, error) {
	if host == "" {
		host = "127.0.0.1"
	}
	if port == 0 {
		port = server.RANDOM_PORT
	}
	opts := &server.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}
	if storeDir != "" {
		opts.JetStream = true
		opts.StoreDir = storeDir
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("nats server: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server not ready for connections")
	}

	logging.GetEventBusLogger().Info("встроенный NATS слушает %s", ns.ClientURL())
	return &EmbeddedServer{ns: ns}, nil
}

// ClientURL адрес для подключения клиентов
func (s *EmbeddedServer) ClientURL() string {
	return s.ns.ClientURL()
}

// Shutdown останавливает сервер и ждёт завершения
func (s *EmbeddedServer) Shutdown() {
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
}
