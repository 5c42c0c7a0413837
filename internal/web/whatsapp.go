package web

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"motorcortex/internal/intent"
	"motorcortex/internal/logging"
)

const whatsAppURL = "https://web.whatsapp.com"

// WhatsApp Web selectors. data-tab indices are stable across the current
// UI generations; title-attribute spans carry the contact names in the
// search results.
const (
	waSearchBoxSelector    = `div[contenteditable="true"][data-tab="3"]`
	waMessageInputSelector = `div[contenteditable="true"][data-tab="10"]`
	waTimeout              = 15 * time.Second
)

// sendWhatsApp drives WhatsApp Web end to end: search for the contact,
// open the conversation, type the message, press enter. The persistent
// profile keeps the session logged in between runs.
func (e *Executor) sendWhatsApp(ctx context.Context, step intent.Step) error {
	if step.Contact == "" {
		return &ExecutionError{Code: CodeWAMissingContact, Message: "no contact given for web_send_message"}
	}
	if step.Message == "" {
		return &ExecutionError{Code: CodeWAMissingMessage, Message: "no message given for web_send_message"}
	}

	page := e.page.Context(ctx)
	if !strings.HasPrefix(e.currentPageURL(), whatsAppURL) {
		nav := page.Timeout(e.cfg.GetBrowserNavTimeout())
		if err := nav.Navigate(whatsAppURL); err != nil {
			return err
		}
		_ = nav.WaitLoad()
	}

	search, err := page.Timeout(waTimeout).Element(waSearchBoxSelector)
	if err != nil {
		return &ExecutionError{
			Code:    CodeWANotLoggedIn,
			Message: "WhatsApp Web did not show a chat list; scan the QR code to log in first",
		}
	}
	if err := fillElement(search, step.Contact); err != nil {
		return err
	}

	result, err := page.Timeout(waTimeout).Element(fmt.Sprintf(`span[title=%q]`, step.Contact))
	if err != nil {
		return &ExecutionError{
			Code:    CodeWAContactMissing,
			Message: "contact not found: " + step.Contact,
		}
	}
	if err := result.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}

	msgInput, err := page.Timeout(waTimeout).Element(waMessageInputSelector)
	if err != nil {
		return &ExecutionError{
			Code:    CodeWAChatNotReady,
			Message: "message input did not appear after opening the chat",
		}
	}
	if err := fillElement(msgInput, step.Message); err != nil {
		return err
	}
	if err := msgInput.Type(input.Enter); err != nil {
		return err
	}

	logging.Web("whatsapp message sent to %s", step.Contact)
	return nil
}
