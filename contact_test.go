package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []*ContactMessage
	err  error
}

func (f *fakeMailer) Send(_ context.Context, m *ContactMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func TestContactSubmitDelivered(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	mailer := &fakeMailer{}
	svc := NewContactService(store, mailer, NewMetrics())

	msg, err := svc.Submit(ctx, ContactForm{
		FullName: "  Jane Doe ",
		Email:    "jane@example.com",
		Message:  "Let's work together.\n",
	}, "abcd")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.True(t, msg.Delivered)
	assert.Equal(t, "Jane Doe", msg.FullName)
	assert.Equal(t, "Let's work together.", msg.Message)
	require.Len(t, mailer.sent, 1)

	stored, err := store.ListContactMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Delivered)
}

func TestContactSubmitMailFailureKeepsMessage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := NewContactService(store, &fakeMailer{err: errors.New("smtp down")}, nil)

	msg, err := svc.Submit(ctx, ContactForm{FullName: "Jane", Email: "jane@example.com", Message: "Hi"}, "abcd")
	assert.Error(t, err)
	require.NotNil(t, msg)
	assert.False(t, msg.Delivered)

	stored, err := store.ListContactMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].Delivered)
}

func TestContactSubmitInvalid(t *testing.T) {
	store := newTestStore(t)
	mailer := &fakeMailer{}
	svc := NewContactService(store, mailer, nil)

	_, err := svc.Submit(context.Background(), ContactForm{FullName: " ", Email: "jane@example.com", Message: "Hi"}, "abcd")
	assert.True(t, errors.Is(err, ErrInvalidContact))
	assert.Empty(t, mailer.sent)

	stored, err := store.ListContactMessages(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSMTPMailerRequiresCredentials(t *testing.T) {
	err := newSMTPMailer(SMTPConfig{Host: "localhost", Port: "25"}).Send(context.Background(), &ContactMessage{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP credentials not configured")
}

func TestComposeContactEmail(t *testing.T) {
	m := &ContactMessage{
		FullName: "Mallory\r\nBcc: victim@example.com",
		Email:    "mallory@example.com\nX-Injected: yes",
		Message:  "Hello there",
	}
	raw := string(composeContactEmail("owner@example.com", "site@example.com", m))

	headers, body, ok := strings.Cut(raw, "\r\n\r\n")
	require.True(t, ok)
	assert.Contains(t, headers, "To: owner@example.com\r\n")
	assert.Contains(t, headers, "From: site@example.com\r\n")
	assert.Contains(t, headers, "Subject: Portfolio Contact: Mallory  Bcc: victim@example.com\r\n")
	assert.NotContains(t, headers, "\nBcc:")
	assert.NotContains(t, headers, "\nX-Injected:")
	assert.Contains(t, body, "Hello there")
}
