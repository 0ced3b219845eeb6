// Package notification delivers patient-facing email and SMS messages for
// appointment changes and medication reminders. Delivery goes through
// pluggable senders; every attempt is kept in an in-memory outbox so failed
// sends can be inspected and retried.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Notification Types
// ---------------------------------------------------------------------------

// NotificationType represents the channel used to deliver a notification.
type NotificationType string

const (
	TypeEmail NotificationType = "email"
	TypeSMS   NotificationType = "sms"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// ErrNotFound is returned for an unknown notification id.
var ErrNotFound = errors.New("notification not found")

// ErrNotRetryable is returned when retrying a notification that did not fail.
var ErrNotRetryable = errors.New("notification is not in failed status")

// Notification represents a single outbound notification.
type Notification struct {
	ID           string            `json:"id"`
	Type         NotificationType  `json:"type"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject,omitempty"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	PatientID    string            `json:"patient_id,omitempty"`
	Status       string            `json:"status"`
	Attempts     int               `json:"attempts"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Sender Interfaces
// ---------------------------------------------------------------------------

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// LogSender writes messages to the log instead of a gateway. It is the
// sender used until a real email or SMS provider is configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "notification").Logger()}
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.logger.Info().Str("channel", "email").Str("to", to).Str("subject", subject).Int("body_len", len(body)).Msg("notification delivered")
	return nil
}

func (s *LogSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Info().Str("channel", "sms").Str("to", to).Int("body_len", len(body)).Msg("notification delivered")
	return nil
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines a reusable notification template.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

const (
	TemplateAppointmentBooked    = "appointment-booked"
	TemplateAppointmentCancelled = "appointment-cancelled"
	TemplateAppointmentReminder  = "appointment-reminder"
	TemplateMedicationReminder   = "medication-reminder"
)

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateAppointmentBooked,
			Name:    "Appointment Booked",
			Subject: "Appointment confirmed for {{date}}",
			Body:    "Dear {{patient_name}}, your appointment with {{clinician}} is booked for {{date}} at {{time}}.",
		},
		{
			ID:      TemplateAppointmentCancelled,
			Name:    "Appointment Cancelled",
			Subject: "Appointment on {{date}} cancelled",
			Body:    "Dear {{patient_name}}, your appointment with {{clinician}} on {{date}} at {{time}} has been cancelled.",
		},
		{
			ID:      TemplateAppointmentReminder,
			Name:    "Appointment Reminder",
			Subject: "Appointment Reminder for {{patient_name}}",
			Body:    "Dear {{patient_name}}, this is a reminder of your appointment on {{date}} at {{time}} with {{clinician}}.",
		},
		{
			ID:      TemplateMedicationReminder,
			Name:    "Medication Reminder",
			Subject: "Medication reminder: {{medication}}",
			Body:    "Dear {{patient_name}}, remember to take {{medication}} today ({{date}}) and mark it as taken.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Notification Manager
// ---------------------------------------------------------------------------

// Manager sends notifications and keeps the outbox.
type Manager struct {
	emailSender   EmailSender
	smsSender     SMSSender
	templates     *TemplateEngine
	now           func() time.Time
	mu            sync.RWMutex
	notifications map[string]*Notification
}

func NewManager(email EmailSender, sms SMSSender, tpl *TemplateEngine) *Manager {
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	return &Manager{
		emailSender:   email,
		smsSender:     sms,
		templates:     tpl,
		now:           time.Now,
		notifications: make(map[string]*Notification),
	}
}

func (m *Manager) deliver(ctx context.Context, n *Notification) error {
	switch n.Type {
	case TypeEmail:
		if m.emailSender == nil {
			return errors.New("no email sender configured")
		}
		return m.emailSender.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	case TypeSMS:
		if m.smsSender == nil {
			return errors.New("no sms sender configured")
		}
		return m.smsSender.SendSMS(ctx, n.Recipient, n.Body)
	default:
		return fmt.Errorf("unsupported notification type: %s", n.Type)
	}
}

// record applies a delivery outcome. Callers hold m.mu.
func (m *Manager) record(n *Notification, sendErr error) {
	n.Attempts++
	if sendErr != nil {
		n.Status = StatusFailed
		n.Error = sendErr.Error()
		return
	}
	n.Status = StatusSent
	sentAt := m.now().UTC()
	n.SentAt = &sentAt
	n.Error = ""
}

// Send delivers n and stores it whatever the outcome. The send error is
// returned after the notification is stored.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = m.now().UTC()

	sendErr := m.deliver(ctx, n)

	m.mu.Lock()
	m.record(n, sendErr)
	m.notifications[n.ID] = n
	m.mu.Unlock()

	return sendErr
}

// SendFromTemplate renders a template and sends the resulting notification.
func (m *Manager) SendFromTemplate(ctx context.Context, typ NotificationType, templateID string, data map[string]string, recipient string) (*Notification, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	n := &Notification{
		Type:         typ,
		Recipient:    recipient,
		Subject:      subject,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
		PatientID:    data["patient_id"],
	}
	if err := m.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

func (m *Manager) Get(_ context.Context, id string) (Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[id]
	if !ok {
		return Notification{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *n, nil
}

// List returns notifications matching the filter, newest first, up to
// limit. Empty filter fields match everything.
func (m *Manager) List(_ context.Context, recipient, patientID string, limit int) []Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []Notification{}
	for _, n := range m.notifications {
		if recipient != "" && n.Recipient != recipient {
			continue
		}
		if patientID != "" && n.PatientID != patientID {
			continue
		}
		result = append(result, *n)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Retry re-sends a failed notification.
func (m *Manager) Retry(ctx context.Context, id string) (Notification, error) {
	m.mu.RLock()
	n, ok := m.notifications[id]
	var status string
	var snapshot Notification
	if ok {
		status = n.Status
		snapshot = *n
	}
	m.mu.RUnlock()
	if !ok {
		return Notification{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if status != StatusFailed {
		return snapshot, fmt.Errorf("%w: %s is %s", ErrNotRetryable, id, status)
	}

	sendErr := m.deliver(ctx, &snapshot)

	m.mu.Lock()
	m.record(n, sendErr)
	out := *n
	m.mu.Unlock()

	return out, sendErr
}

// Stats returns counts of notifications grouped by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := map[string]int{StatusSent: 0, StatusFailed: 0}
	for _, n := range m.notifications {
		stats[n.Status]++
	}
	return stats
}
