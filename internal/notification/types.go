package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fuomag9/servicewatch/internal/models"
)

// EventAlertNotification is the websocket event carrying a fired alert.
const EventAlertNotification = "alert-notification"

// ErrEmailDisabled is returned by the sender used when no SMTP relay is configured.
var ErrEmailDisabled = errors.New("notification: email delivery is not configured")

// Email is what the email collaborator needs to deliver one alert.
type Email struct {
	To          string
	Subject     string
	Message     string
	ServiceName string
	Severity    models.Severity
}

// EmailSender delivers one email. A nil error means the relay accepted it.
type EmailSender interface {
	Send(ctx context.Context, email Email) error
}

// Broadcaster fans a payload out to live subscribers.
type Broadcaster interface {
	Broadcast(msgType string, payload any) error
}

// disabledSender fails every send so email rules surface as failed deliveries.
type disabledSender struct{}

func (disabledSender) Send(context.Context, Email) error { return ErrEmailDisabled }

// DisabledSender returns a sender that always fails with ErrEmailDisabled.
func DisabledSender() EmailSender { return disabledSender{} }

// Subject builds the email subject line for an alert.
func Subject(severity models.Severity, serviceName string) string {
	return fmt.Sprintf("[%s] Alert for %s", strings.ToUpper(string(severity)), headerValue(serviceName))
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// headerValue flattens line breaks so a value stays on a single header line.
func headerValue(s string) string {
	return headerBreaks.Replace(s)
}

// FormatBody formats the plain-text email body
func FormatBody(e Email) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Service: %s\n", e.ServiceName)
	fmt.Fprintf(&b, "Severity: %s\n", e.Severity)
	b.WriteString("\n")
	b.WriteString(e.Message)
	b.WriteString("\n")
	return b.String()
}
