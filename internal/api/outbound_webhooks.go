package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/annel0/descent/internal/eventbus"
	"github.com/annel0/descent/internal/logging"
	"github.com/gin-gonic/gin"
)

// OutboundWebhook исходящий webhook, получающий события мира
type OutboundWebhook struct {
	ID     uint64   `json:"id" yaml:"-"`
	Name   string   `json:"name" yaml:"name" binding:"required"`
	URL    string   `json:"url" yaml:"url" binding:"required"`
	Secret string   `json:"secret,omitempty" yaml:"secret"`
	Events []string `json:"events" yaml:"events" binding:"required"` // "*": все события
	// Timeout таймаут одной попытки в секундах
	Timeout      int        `json:"timeout" yaml:"timeout"`
	RetryCount   int        `json:"retry_count" yaml:"retry_count"`
	CreatedAt    time.Time  `json:"created_at" yaml:"-"`
	LastUsed     *time.Time `json:"last_used,omitempty" yaml:"-"`
	FailureCount int        `json:"failure_count" yaml:"-"`
}

// OutboundWebhookEvent тело запроса к webhook'у
type OutboundWebhookEvent struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     int64           `json:"timestamp"`
	ServerID      string          `json:"server_id"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Source        string          `json:"source"`
	Data          json.RawMessage `json:"data"`
}

// OutboundWebhookManager пересылает события шины подписанным webhook'ам
type OutboundWebhookManager struct {
	webhooks   map[uint64]*OutboundWebhook
	eventQueue chan *eventbus.Envelope
	mu         sync.RWMutex
	nextID     uint64
	httpClient *http.Client
	serverID   string
	retryDelay time.Duration
	log        *logging.Logger

	sub       eventbus.Subscription
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewOutboundWebhookManager создает новый менеджер исходящих webhook'ов
func NewOutboundWebhookManager(serverID string) *OutboundWebhookManager {
	owm := &OutboundWebhookManager{
		webhooks:   make(map[uint64]*OutboundWebhook),
		eventQueue: make(chan *eventbus.Envelope, 1000),
		nextID:     1,
		serverID:   serverID,
		retryDelay: time.Second,
		httpClient: &http.Client{},
		log:        logging.GetAPILogger(),
		done:       make(chan struct{}),
	}

	owm.wg.Add(1)
	go owm.eventWorker()
	return owm
}

// Attach подписывает менеджер на все события шины
func (owm *OutboundWebhookManager) Attach(ctx context.Context, bus eventbus.EventBus) error {
	sub, err := bus.Subscribe(ctx, eventbus.Filter{}, func(_ context.Context, ev *eventbus.Envelope) {
		owm.Enqueue(ev)
	})
	if err != nil {
		return fmt.Errorf("subscribe webhooks: %w", err)
	}
	owm.mu.Lock()
	owm.sub = sub
	owm.mu.Unlock()
	return nil
}

// AddWebhook добавляет новый webhook
func (owm *OutboundWebhookManager) AddWebhook(webhook OutboundWebhook) *OutboundWebhook {
	owm.mu.Lock()
	defer owm.mu.Unlock()

	webhook.ID = owm.nextID
	owm.nextID++
	webhook.CreatedAt = time.Now().UTC()
	webhook.LastUsed = nil
	webhook.FailureCount = 0

	if webhook.Timeout <= 0 {
		webhook.Timeout = 30
	}
	if webhook.RetryCount < 0 {
		webhook.RetryCount = 0
	}

	owm.webhooks[webhook.ID] = &webhook
	c := webhook
	return &c
}

// GetWebhooks возвращает копии всех webhook'ов по возрастанию id
func (owm *OutboundWebhookManager) GetWebhooks() []OutboundWebhook {
	owm.mu.RLock()
	defer owm.mu.RUnlock()

	webhooks := make([]OutboundWebhook, 0, len(owm.webhooks))
	for _, webhook := range owm.webhooks {
		webhooks = append(webhooks, *webhook)
	}
	sort.Slice(webhooks, func(i, j int) bool { return webhooks[i].ID < webhooks[j].ID })
	return webhooks
}

// GetWebhook возвращает копию webhook'а по ID
func (owm *OutboundWebhookManager) GetWebhook(id uint64) (OutboundWebhook, bool) {
	owm.mu.RLock()
	defer owm.mu.RUnlock()

	webhook, exists := owm.webhooks[id]
	if !exists {
		return OutboundWebhook{}, false
	}
	return *webhook, true
}

// DeleteWebhook удаляет webhook
func (owm *OutboundWebhookManager) DeleteWebhook(id uint64) bool {
	owm.mu.Lock()
	defer owm.mu.Unlock()

	if _, exists := owm.webhooks[id]; !exists {
		return false
	}
	delete(owm.webhooks, id)
	return true
}

// Enqueue ставит событие в очередь отправки; при переполнении событие пропускается
func (owm *OutboundWebhookManager) Enqueue(ev *eventbus.Envelope) {
	select {
	case <-owm.done:
		return
	default:
	}
	select {
	case owm.eventQueue <- ev:
	default:
		owm.log.Warn("⚠️  Очередь webhook'ов переполнена, событие %s пропущено", ev.EventType)
	}
}

// Close отписывается от шины и дожидается отправки начатых событий
func (owm *OutboundWebhookManager) Close() {
	owm.closeOnce.Do(func() {
		owm.mu.RLock()
		sub := owm.sub
		owm.mu.RUnlock()
		if sub != nil {
			sub.Unsubscribe()
		}
		close(owm.done)
	})
	owm.wg.Wait()
}

// eventWorker обрабатывает события из очереди
func (owm *OutboundWebhookManager) eventWorker() {
	defer owm.wg.Done()
	for {
		select {
		case ev := <-owm.eventQueue:
			owm.processEvent(ev)
		case <-owm.done:
			return
		}
	}
}

// processEvent рассылает одно событие подписанным webhook'ам
func (owm *OutboundWebhookManager) processEvent(ev *eventbus.Envelope) {
	owm.mu.RLock()
	targets := make([]*OutboundWebhook, 0)
	for _, webhook := range owm.webhooks {
		if isSubscribedToEvent(webhook, ev.EventType) {
			targets = append(targets, webhook)
		}
	}
	owm.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	body, err := json.Marshal(OutboundWebhookEvent{
		EventID:       ev.ID,
		EventType:     ev.EventType,
		Timestamp:     ev.Timestamp.Unix(),
		ServerID:      owm.serverID,
		CorrelationID: ev.CorrelationID,
		Source:        ev.Source,
		Data:          json.RawMessage(ev.Payload),
	})
	if err != nil {
		owm.log.Err(err, "❌ Ошибка маршалинга события %s", ev.EventType)
		return
	}

	for _, webhook := range targets {
		owm.wg.Add(1)
		go func(w *OutboundWebhook) {
			defer owm.wg.Done()
			owm.sendToWebhook(w, ev.EventType, body)
		}(webhook)
	}
}

// isSubscribedToEvent проверяет, подписан ли webhook на событие
func isSubscribedToEvent(webhook *OutboundWebhook, eventType string) bool {
	for _, subscribed := range webhook.Events {
		if subscribed == eventType || subscribed == "*" {
			return true
		}
	}
	return false
}

// sendToWebhook отправляет событие с повторами и обновляет статистику webhook'а
func (owm *OutboundWebhookManager) sendToWebhook(webhook *OutboundWebhook, eventType string, body []byte) {
	owm.mu.RLock()
	name, url, secret := webhook.Name, webhook.URL, webhook.Secret
	timeout := time.Duration(webhook.Timeout) * time.Second
	retries := webhook.RetryCount
	owm.mu.RUnlock()

	success := false
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * owm.retryDelay):
			case <-owm.done:
				attempt = retries
				continue
			}
		}
		status, err := owm.post(url, secret, eventType, body, timeout)
		if err == nil && status >= 200 && status < 300 {
			success = true
			owm.log.Debug("✅ Событие %s отправлено в webhook %s", eventType, name)
			break
		}
		if err != nil {
			owm.log.Warn("⚠️  Попытка %d/%d для webhook %s: %v", attempt+1, retries+1, name, err)
		} else {
			owm.log.Warn("⚠️  Webhook %s вернул статус %d на попытке %d", name, status, attempt+1)
		}
	}

	owm.mu.Lock()
	now := time.Now().UTC()
	webhook.LastUsed = &now
	if !success {
		webhook.FailureCount++
	}
	owm.mu.Unlock()
}

func (owm *OutboundWebhookManager) post(url, secret, eventType string, body []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Descent-Server/1.0")
	req.Header.Set("X-Event-Type", eventType)
	req.Header.Set("X-Server-ID", owm.serverID)
	if secret != "" {
		req.Header.Set("X-Webhook-Signature", generateSignature(body, secret))
	}

	resp, err := owm.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// generateSignature генерирует HMAC подпись тела
func generateSignature(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// EventTypes возвращает типы событий, доступные для подписки
func EventTypes() []string {
	return []string{
		eventbus.TypeSessionCreated,
		eventbus.TypeSessionDeleted,
		eventbus.TypeAreaGenerated,
		eventbus.TypeStateSynced,
	}
}

func validEventType(t string) bool {
	if t == "*" {
		return true
	}
	for _, known := range EventTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// === ОБРАБОТЧИКИ ИСХОДЯЩИХ WEBHOOK'ОВ ===

// redact скрывает секрет в ответах API
func redact(w OutboundWebhook) OutboundWebhook {
	w.Secret = ""
	return w
}

func (rs *RestServer) handleGetOutboundWebhooks(c *gin.Context) {
	webhooks := rs.webhooks.GetWebhooks()
	for i := range webhooks {
		webhooks[i] = redact(webhooks[i])
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список исходящих webhook'ов",
		Data: gin.H{
			"webhooks":    webhooks,
			"event_types": EventTypes(),
		},
	})
}

func (rs *RestServer) handleCreateOutboundWebhook(c *gin.Context) {
	var webhook OutboundWebhook
	if err := c.ShouldBindJSON(&webhook); err != nil {
		rs.badRequest(c, "Неверный формат запроса")
		return
	}
	for _, t := range webhook.Events {
		if !validEventType(t) {
			rs.badRequest(c, fmt.Sprintf("Неизвестный тип события: %s", t))
			return
		}
	}

	created := rs.webhooks.AddWebhook(webhook)
	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Webhook создан",
		Data:    redact(*created),
	})
}

func (rs *RestServer) webhookID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		rs.badRequest(c, "Неверный ID webhook'а")
		return 0, false
	}
	return id, true
}

func (rs *RestServer) handleGetOutboundWebhook(c *gin.Context) {
	id, ok := rs.webhookID(c)
	if !ok {
		return
	}
	webhook, found := rs.webhooks.GetWebhook(id)
	if !found {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Webhook не найден",
		})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Webhook найден",
		Data:    redact(webhook),
	})
}

func (rs *RestServer) handleDeleteOutboundWebhook(c *gin.Context) {
	id, ok := rs.webhookID(c)
	if !ok {
		return
	}
	if !rs.webhooks.DeleteWebhook(id) {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Webhook не найден",
		})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Webhook удален",
	})
}
