package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/descent/internal/api"
	"github.com/annel0/descent/internal/eventbus"
)

const (
	defaultNATSURL = "nats://127.0.0.1:4222"
	timeFormat     = "15:04:05"
)

func main() {
	var (
		natsURL    = flag.String("nats", defaultNATSURL, "NATS server address")
		command    = flag.String("cmd", "tail", "Command: tail, types, token")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		sources    = flag.String("sources", "", "Sources filter (comma-separated)")
		session    = flag.String("session", "", "Session ID filter")
		limit      = flag.Int("limit", 100, "Maximum number of events")
		follow     = flag.Bool("follow", false, "Ignore limit and follow new events (like tail -f)")
		secret     = flag.String("secret", os.Getenv("JWT_SECRET"), "JWT secret for token command")
		issuer     = flag.String("issuer", "descent", "JWT issuer for token command")
		subject    = flag.String("subject", "operator", "JWT subject for token command")
		ttl        = flag.Duration("ttl", 24*time.Hour, "JWT lifetime for token command")
	)
	flag.Parse()

	switch *command {
	case "tail":
		if err := tailEvents(*natsURL, &TailOptions{
			EventTypes: parseStringList(*eventTypes),
			Sources:    parseStringList(*sources),
			SessionID:  *session,
			Limit:      *limit,
			Follow:     *follow,
		}); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "types":
		fmt.Println("📋 Available event types")
		for _, t := range api.EventTypes() {
			fmt.Printf("  %s\n", t)
		}

	case "token":
		auth, err := api.NewAuthenticator(*secret, *issuer)
		if err != nil {
			log.Fatalf("❌ Token failed: %v", err)
		}
		token, err := auth.IssueToken(*subject, *ttl)
		if err != nil {
			log.Fatalf("❌ Token failed: %v", err)
		}
		fmt.Println(token)

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, types, token")
		os.Exit(1)
	}
}

type TailOptions struct {
	EventTypes []string
	Sources    []string
	SessionID  string
	Limit      int
	Follow     bool
}

// matches проверяет фильтр по сессии; типы и источники фильтрует шина
func (o *TailOptions) matches(ev *eventbus.Envelope) bool {
	return o.SessionID == "" || ev.CorrelationID == o.SessionID
}

// tailEvents выводит события шины в реальном времени
func tailEvents(url string, opts *TailOptions) error {
	bus, err := eventbus.NewNATSBus(eventbus.NATSConfig{URL: url})
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("🎬 Tailing events from %s (limit: %d, follow: %v)\n", url, opts.Limit, opts.Follow)

	events := make(chan *eventbus.Envelope, 64)
	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: opts.EventTypes, Sources: opts.Sources}, func(_ context.Context, ev *eventbus.Envelope) {
		if !opts.matches(ev) {
			return
		}
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	eventCount := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n📊 Total events: %d\n", eventCount)
			return nil
		case ev := <-events:
			printEvent(ev)
			eventCount++
			if !opts.Follow && eventCount >= opts.Limit {
				fmt.Printf("\n📊 Total events: %d\n", eventCount)
				return nil
			}
		}
	}
}

// printEvent выводит событие в читаемом формате
func printEvent(ev *eventbus.Envelope) {
	fmt.Print(formatEvent(ev))
}

func formatEvent(ev *eventbus.Envelope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s [%s] %s\n",
		ev.Timestamp.Format(timeFormat),
		ev.Source,
		ev.EventType,
		ev.ID)
	if ev.CorrelationID != "" {
		fmt.Fprintf(&b, "  Session: %s\n", ev.CorrelationID)
	}
	if len(ev.Payload) > 0 {
		fmt.Fprintf(&b, "  Payload: %s\n", ev.Payload)
	}
	return b.String()
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
