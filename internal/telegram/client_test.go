package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/pagepin/internal/mirror"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(ClientOptions{
		BaseURL:    server.URL,
		Token:      "bot-token",
		ChatID:     -1001234567890,
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	})
}

func decodePayload(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode request payload: %v", err)
	}
	return payload
}

func TestSendMessage(t *testing.T) {
	var payload map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/botbot-token/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		payload = decodePayload(t, r)
		w.Write([]byte(`{"ok": true, "result": {"message_id": 42}}`))
	})
	client := newTestClient(t, mux)

	messageID, err := client.SendMessage(context.Background(), "*hello*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if messageID != 42 {
		t.Fatalf("expected message id 42, got %d", messageID)
	}
	if payload["parse_mode"] != "MarkdownV2" {
		t.Fatalf("expected MarkdownV2 parse mode, got %v", payload["parse_mode"])
	}
	if payload["disable_web_page_preview"] != true {
		t.Fatalf("expected link previews disabled")
	}
	if payload["chat_id"] != float64(-1001234567890) {
		t.Fatalf("unexpected chat id: %v", payload["chat_id"])
	}
}

func TestSendMessageTooLong(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": false, "error_code": 400, "description": "Bad Request: message is too long"}`))
	})
	client := newTestClient(t, mux)

	_, err := client.SendMessage(context.Background(), "oversized")
	if !errors.Is(err, mirror.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestEditMessageNotModifiedIsSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": false, "error_code": 400, "description": "Bad Request: message is not modified"}`))
	})
	client := newTestClient(t, mux)

	if err := client.EditMessage(context.Background(), 42, "same text"); err != nil {
		t.Fatalf("expected identical edit to succeed, got %v", err)
	}
}

func TestEditMessageVanishedTargetIsNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": false, "error_code": 400, "description": "Bad Request: message to edit not found"}`))
	})
	client := newTestClient(t, mux)

	err := client.EditMessage(context.Background(), 42, "updated")
	if !errors.Is(err, mirror.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCallRetriesRateLimitWithRetryAfter(t *testing.T) {
	attempts := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Write([]byte(`{"ok": false, "error_code": 429, "description": "Too Many Requests", "parameters": {"retry_after": 0}}`))
			return
		}
		w.Write([]byte(`{"ok": true, "result": {"message_id": 7}}`))
	})
	client := newTestClient(t, mux)

	messageID, err := client.SendMessage(context.Background(), "retried")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if messageID != 7 || attempts != 2 {
		t.Fatalf("unexpected outcome: id=%d attempts=%d", messageID, attempts)
	}
}

func TestCallForbiddenIsPermanent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": false, "error_code": 403, "description": "Forbidden: bot was kicked"}`))
	})
	client := newTestClient(t, mux)

	_, err := client.SendMessage(context.Background(), "text")
	if !errors.Is(err, mirror.ErrPermanent) {
		t.Fatalf("expected ErrPermanent, got %v", err)
	}
}

func TestPinnedMessageDetectsPoll(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/botbot-token/getChat", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": true, "result": {"pinned_message": {"message_id": 11, "poll": {"id": "p1"}}}}`))
	})
	client := newTestClient(t, mux)

	pinned, err := client.PinnedMessage(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pinned == nil || pinned.MessageID != 11 || !pinned.IsPoll {
		t.Fatalf("unexpected pinned slot: %#v", pinned)
	}
}

func TestPinnedMessageEmptySlot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/botbot-token/getChat", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": true, "result": {"id": -1001234567890}}`))
	})
	client := newTestClient(t, mux)

	pinned, err := client.PinnedMessage(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pinned != nil {
		t.Fatalf("expected nil pinned slot, got %#v", pinned)
	}
}

func TestPinMessageDisablesNotification(t *testing.T) {
	var payload map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/botbot-token/pinChatMessage", func(w http.ResponseWriter, r *http.Request) {
		payload = decodePayload(t, r)
		w.Write([]byte(`{"ok": true, "result": true}`))
	})
	client := newTestClient(t, mux)

	if err := client.PinMessage(context.Background(), 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload["disable_notification"] != true {
		t.Fatalf("expected silent pin, got %v", payload)
	}
}

func TestUnpinMessageTargetsMessage(t *testing.T) {
	var payload map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/botbot-token/unpinChatMessage", func(w http.ResponseWriter, r *http.Request) {
		payload = decodePayload(t, r)
		w.Write([]byte(`{"ok": true, "result": true}`))
	})
	client := newTestClient(t, mux)

	if err := client.UnpinMessage(context.Background(), 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload["message_id"] != float64(42) {
		t.Fatalf("expected unpin to target message 42, got %v", payload)
	}
}

func TestDeleteMessageVanishedTargetIsNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/botbot-token/deleteMessage", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": false, "error_code": 400, "description": "Bad Request: message to delete not found"}`))
	})
	client := newTestClient(t, mux)

	err := client.DeleteMessage(context.Background(), 42)
	if err == nil {
		t.Fatalf("expected error for vanished delete target")
	}
}

func TestMessageURL(t *testing.T) {
	client := NewClient(ClientOptions{Token: "t", ChatID: -1001234567890})
	if got := client.MessageURL(42); got != "https://t.me/c/1234567890/42" {
		t.Fatalf("unexpected url: %s", got)
	}
}
