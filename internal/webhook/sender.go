package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/orrn/printdesk/internal/core"
	"github.com/orrn/printdesk/internal/db"
)

type WebhookEvent string

const (
	EventJobSent      WebhookEvent = "job.sent"
	EventJobStarted   WebhookEvent = "job.started"
	EventJobCompleted WebhookEvent = "job.completed"
	EventJobFailed    WebhookEvent = "job.failed"
	EventJobCanceled  WebhookEvent = "job.canceled"
	EventJobExpired   WebhookEvent = "job.expired"
)

// Events lists every event a webhook can subscribe to.
var Events = []WebhookEvent{
	EventJobSent, EventJobStarted, EventJobCompleted,
	EventJobFailed, EventJobCanceled, EventJobExpired,
}

var transitionEvents = map[core.State]WebhookEvent{
	core.StateSent:       EventJobSent,
	core.StateInProgress: EventJobStarted,
	core.StateDone:       EventJobCompleted,
	core.StateError:      EventJobFailed,
	core.StateCanceled:   EventJobCanceled,
	core.StateExpired:    EventJobExpired,
}

// sampleTransitions gives each event the transition a test delivery reports.
var sampleTransitions = map[WebhookEvent][2]core.State{
	EventJobSent:      {core.StatePreparing, core.StateSent},
	EventJobStarted:   {core.StateSent, core.StateInProgress},
	EventJobCompleted: {core.StateInProgress, core.StateDone},
	EventJobFailed:    {core.StateInProgress, core.StateError},
	EventJobCanceled:  {core.StateSent, core.StateCanceled},
	EventJobExpired:   {core.StatePreparing, core.StateExpired},
}

// IsEvent reports whether name is an event a webhook can subscribe to.
func IsEvent(name string) bool {
	for _, e := range Events {
		if string(e) == name {
			return true
		}
	}
	return false
}

type WebhookPayload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	Signature string      `json:"signature,omitempty"`
}

type JobEventData struct {
	JobID     string `json:"job_id"`
	Owner     string `json:"owner"`
	Name      string `json:"name,omitempty"`
	State     string `json:"state"`
	Previous  string `json:"previous_state"`
	Pages     string `json:"pages"`
	Copies    int    `json:"copies"`
	Expected  int    `json:"expected_pages"`
	Reference string `json:"reference,omitempty"`
}

// NewJobEventData describes the transition of the job shown by v.
func NewJobEventData(v core.View, from, to core.State) *JobEventData {
	return &JobEventData{
		JobID:     v.ID,
		Owner:     v.Owner,
		Name:      v.Name,
		State:     to.String(),
		Previous:  from.String(),
		Pages:     v.PageRanges,
		Copies:    v.Copies,
		Expected:  v.Expected,
		Reference: v.Reference,
	}
}

// SampleEventData is the data of a test delivery for event: a two page job
// of owner making the transition the event stands for.
func SampleEventData(event WebhookEvent, owner string) *JobEventData {
	v := core.View{
		ID:         "000000",
		Owner:      owner,
		Name:       "sample.pdf",
		PageRanges: "1-2",
		Copies:     1,
		Expected:   2,
	}
	t, ok := sampleTransitions[event]
	if !ok {
		t = sampleTransitions[EventJobCompleted]
	}
	if t[1] != core.StateExpired {
		v.Reference = "1"
	}
	return NewJobEventData(v, t[0], t[1])
}

// Store looks up webhook registrations.
type Store interface {
	ListActiveWebhooksForEvent(ctx context.Context, owner, event string) ([]*db.Webhook, error)
	GetWebhookByID(ctx context.Context, id int64) (*db.Webhook, error)
}

type WebhookConfig struct {
	RetryCount  int
	RetryDelay  time.Duration
	Timeout     time.Duration
	WorkerCount int
	QueueSize   int
}

type webhookTask struct {
	webhookID int64
	event     WebhookEvent
	payload   *WebhookPayload
	attempt   int
}

type WebhookSender struct {
	store       Store
	httpClient  *http.Client
	retryCount  int
	retryDelay  time.Duration
	workerCount int
	queue       chan *webhookTask
	stopCh      chan struct{}
	wg          sync.WaitGroup
	logger      *slog.Logger
}

func NewWebhookSender(store Store, config WebhookConfig, logger *slog.Logger) *WebhookSender {
	if config.RetryCount <= 0 {
		config.RetryCount = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 3
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &WebhookSender{
		store: store,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		retryCount:  config.RetryCount,
		retryDelay:  config.RetryDelay,
		workerCount: config.WorkerCount,
		queue:       make(chan *webhookTask, config.QueueSize),
		stopCh:      make(chan struct{}),
		logger:      logger.With("component", "webhook"),
	}
}

func (s *WebhookSender) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *WebhookSender) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// HandleTransition queues the event matching a job state change. It has the
// signature of a core.JobManager transition listener.
func (s *WebhookSender) HandleTransition(v core.View, from, to core.State) {
	event, ok := transitionEvents[to]
	if !ok {
		return
	}
	s.enqueue(v.Owner, event, NewJobEventData(v, from, to))
}

// Send delivers one payload to hook right away, without retries.
func (s *WebhookSender) Send(ctx context.Context, hook *db.Webhook, event WebhookEvent, data interface{}) error {
	return s.sendRequest(ctx, hook, &WebhookPayload{
		Event:     string(event),
		Timestamp: time.Now(),
		Data:      data,
	})
}

// enqueue queues event for every webhook owner has subscribed to it.
func (s *WebhookSender) enqueue(owner string, event WebhookEvent, data interface{}) {
	webhooks, err := s.store.ListActiveWebhooksForEvent(context.Background(), owner, string(event))
	if err != nil {
		s.logger.Error("failed to get webhooks for event", "owner", owner, "event", event, "error", err)
		return
	}

	for _, webhook := range webhooks {
		task := &webhookTask{
			webhookID: webhook.ID,
			event:     event,
			payload: &WebhookPayload{
				Event:     string(event),
				Timestamp: time.Now(),
				Data:      data,
			},
		}

		select {
		case s.queue <- task:
		default:
			s.logger.Warn("queue full, dropping webhook", "webhook_id", webhook.ID, "event", event)
		}
	}
}

func (s *WebhookSender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case task := <-s.queue:
			if err := s.sendWithRetry(task); err != nil {
				s.logger.Error("failed to send webhook",
					"worker", id, "webhook_id", task.webhookID, "event", task.event,
					"attempts", task.attempt, "error", err)
			}
		}
	}
}

func (s *WebhookSender) sendWithRetry(task *webhookTask) error {
	webhook, err := s.store.GetWebhookByID(context.Background(), task.webhookID)
	if err != nil {
		return fmt.Errorf("get webhook: %w", err)
	}

	var lastErr error
	for task.attempt < s.retryCount {
		task.attempt++

		err := s.sendRequest(context.Background(), webhook, task.payload)
		if err == nil {
			return nil
		}

		lastErr = err

		if isClientError(err) {
			s.logger.Warn("client error, not retrying", "webhook_id", webhook.ID, "error", err)
			return err
		}

		if task.attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(task.attempt-1))
			s.logger.Info("retrying webhook",
				"attempt", task.attempt, "max", s.retryCount, "webhook_id", webhook.ID,
				"backoff", backoff, "error", err)

			select {
			case <-s.stopCh:
				return fmt.Errorf("shutdown requested")
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http error: %d", e.code)
}

func (s *WebhookSender) sendRequest(ctx context.Context, webhook *db.Webhook, payload *WebhookPayload) error {
	payloadBytes, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	if webhook.Secret != "" {
		payload.Signature = Sign(payloadBytes, webhook.Secret)
	}

	fullPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(fullPayload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", payload.Signature)
	req.Header.Set("X-Webhook-Event", payload.Event)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &statusError{code: resp.StatusCode}
	}

	return nil
}

// Sign returns the hex HMAC-SHA256 of payload, the value receivers compare
// against the signature field.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func isClientError(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 400 && se.code < 500
	}
	return false
}
