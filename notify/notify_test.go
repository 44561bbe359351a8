package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOTPMessage(t *testing.T) {
	msg := OTPMessage(ChannelSMS, "2348000000000", "password_reset", "123456", 10*time.Minute)

	assert.Equal(t, ChannelSMS, msg.Channel)
	assert.Equal(t, "2348000000000", msg.Recipient)
	assert.Equal(t, "password_reset", msg.Purpose)
	assert.Equal(t, "Your Password Reset code", msg.Subject)
	assert.Equal(t, "Your Password Reset code is 123456. It expires in 10 minutes.", msg.Body)
}

func TestOTPMessageShortTTL(t *testing.T) {
	msg := OTPMessage(ChannelEmail, "a@b.co", "login", "000001", 20*time.Second)
	assert.Equal(t, "Your Login code is 000001. It expires in 1 minute.", msg.Body)
}

func TestLogSenderWritesBody(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sender := NewLogSender(logger)

	require.NoError(t, sender.Send(context.Background(), Message{Channel: ChannelSMS, Recipient: "2348000000000", Body: "code 123456"}))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Contains(t, entry.Message, "code 123456")
	assert.Equal(t, "2348*****0000", entry.Data["recipient"])
}

func TestSMSWebhookPostsForm(t *testing.T) {
	var got url.Values
	var user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got, _ = url.ParseQuery(string(body))
		user, pass, _ = r.BasicAuth()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sender, err := NewSMSWebhook(WebhookConfig{URL: srv.URL, Username: "acct", Password: "secret", From: "COURIER"})
	require.NoError(t, err)

	require.NoError(t, sender.Send(context.Background(), Message{Recipient: "2348000000000", Body: "hello"}))
	assert.Equal(t, "+2348000000000", got.Get("To"))
	assert.Equal(t, "hello", got.Get("Body"))
	assert.Equal(t, "COURIER", got.Get("From"))
	assert.Equal(t, "acct", user)
	assert.Equal(t, "secret", pass)
}

func TestSMSWebhookRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sender, err := NewSMSWebhook(WebhookConfig{URL: srv.URL})
	require.NoError(t, err)

	err = sender.Send(context.Background(), Message{Recipient: "2348000000000", Body: "hello"})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestNewSMSWebhookValidatesURL(t *testing.T) {
	_, err := NewSMSWebhook(WebhookConfig{})
	assert.Error(t, err)
	_, err = NewSMSWebhook(WebhookConfig{URL: "not a url"})
	assert.Error(t, err)
}

func TestSendGrid(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusAccepted)
	var lastBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		lastBody.Store(string(body))
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	sender, err := NewSendGrid(SendGridConfig{APIKey: "key", From: "noreply@courier.test", Host: srv.URL})
	require.NoError(t, err)

	msg := OTPMessage(ChannelEmail, "rider@courier.test", "login", "123456", 5*time.Minute)
	require.NoError(t, sender.Send(context.Background(), msg))
	assert.True(t, strings.Contains(lastBody.Load().(string), "rider@courier.test"))

	status.Store(http.StatusBadRequest)
	assert.ErrorIs(t, sender.Send(context.Background(), msg), ErrRejected)
}

func TestNewSendGridRequiresKey(t *testing.T) {
	_, err := NewSendGrid(SendGridConfig{From: "a@b.co"})
	assert.Error(t, err)
}

func TestRouter(t *testing.T) {
	var sms, email, fallback int
	r := NewRouter().
		Handle(ChannelSMS, SenderFunc(func(context.Context, Message) error { sms++; return nil })).
		Handle(ChannelEmail, SenderFunc(func(context.Context, Message) error { email++; return nil }))

	ctx := context.Background()
	require.NoError(t, r.Send(ctx, Message{Channel: ChannelSMS}))
	require.NoError(t, r.Send(ctx, Message{Channel: ChannelEmail}))
	assert.ErrorIs(t, r.Send(ctx, Message{Channel: "whatsapp"}), ErrNoRoute)

	r.Fallback(SenderFunc(func(context.Context, Message) error { fallback++; return nil }))
	require.NoError(t, r.Send(ctx, Message{Channel: "whatsapp"}))

	assert.Equal(t, 1, sms)
	assert.Equal(t, 1, email)
	assert.Equal(t, 1, fallback)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	var calls int
	failing := SenderFunc(func(context.Context, Message) error {
		calls++
		return errors.New("provider down")
	})
	b := NewBreaker(failing, BreakerConfig{Name: "sms", MinRequests: 3, FailureRatio: 0.5, Timeout: time.Minute})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		assert.Error(t, b.Send(ctx, Message{}))
	}
	assert.Equal(t, "open", b.State())

	err := b.Send(ctx, Message{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, calls)
}
