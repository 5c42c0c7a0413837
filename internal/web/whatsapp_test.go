package web

import (
	"context"
	"errors"
	"testing"

	"motorcortex/internal/config"
	"motorcortex/internal/intent"
)

// Argument checks run before any page access, so a page-less executor is
// enough to exercise them.
func TestSendWhatsAppRequiresContact(t *testing.T) {
	e := &Executor{cfg: config.DefaultConfig()}

	err := e.sendWhatsApp(context.Background(), intent.Step{
		Intent:  intent.IntentWebSendMessage,
		Message: "hello",
	})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Code != CodeWAMissingContact {
		t.Fatalf("sendWhatsApp() = %v, want %s", err, CodeWAMissingContact)
	}
}

func TestSendWhatsAppRequiresMessage(t *testing.T) {
	e := &Executor{cfg: config.DefaultConfig()}

	err := e.sendWhatsApp(context.Background(), intent.Step{
		Intent:  intent.IntentWebSendMessage,
		Contact: "Alice",
	})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Code != CodeWAMissingMessage {
		t.Fatalf("sendWhatsApp() = %v, want %s", err, CodeWAMissingMessage)
	}
}
