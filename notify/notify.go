// Package notify delivers one-time codes to phone numbers and email
// addresses.
//
// Senders are synchronous: Send returns only after the provider accepted the
// message (or failed), so the caller can discard a code that never left the
// building. Compose senders with Router (pick by channel) and Breaker (stop
// calling a provider that keeps failing).
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

var (
	// ErrNoRoute is returned by Router when no sender handles the channel.
	ErrNoRoute = errors.New("notify: no sender for channel")
	// ErrRejected is returned when a provider answered with a non-success status.
	ErrRejected = errors.New("notify: provider rejected message")
)

// Message is one outgoing notification.
type Message struct {
	Channel   string
	Recipient string
	Subject   string
	Body      string
	Purpose   string
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// OTPMessage builds the code notification for purpose.
func OTPMessage(channel, recipient, purpose, code string, ttl time.Duration) Message {
	title := formatPurpose(purpose)
	minutes := int(ttl.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}

	return Message{
		Channel:   channel,
		Recipient: recipient,
		Subject:   fmt.Sprintf("Your %s code", title),
		Body:      fmt.Sprintf("Your %s code is %s. It expires in %d %s.", title, code, minutes, unit),
		Purpose:   purpose,
	}
}

func formatPurpose(purpose string) string {
	p := strings.ReplaceAll(purpose, "_", " ")
	return cases.Title(language.English).String(p)
}
