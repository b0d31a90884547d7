package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"linkrelay/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrRemote, "nextcloud", "mkcol", "failed", base)
	if !errors.Is(err, services.ErrRemote) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"nextcloud", "mkcol", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestStatusErrorClassification(t *testing.T) {
	notFound := fmt.Errorf("push link: %w", &services.StatusError{Service: "tracker", Operation: "update", StatusCode: 404})
	if !errors.Is(notFound, services.ErrNotFound) {
		t.Fatal("expected 404 to match ErrNotFound")
	}
	if !errors.Is(notFound, services.ErrRemote) {
		t.Fatal("expected status error to match ErrRemote")
	}
	if services.StatusCode(notFound) != 404 {
		t.Fatalf("unexpected status code %d", services.StatusCode(notFound))
	}

	unavailable := &services.StatusError{Service: "nextcloud", StatusCode: 503, Body: "maintenance"}
	if errors.Is(unavailable, services.ErrNotFound) {
		t.Fatal("503 must not match ErrNotFound")
	}
	if !errors.Is(unavailable, services.ErrTransient) {
		t.Fatal("expected 503 to be transient")
	}
	if !strings.Contains(unavailable.Error(), "maintenance") {
		t.Fatalf("expected body in message, got %q", unavailable.Error())
	}

	if services.StatusCode(errors.New("plain")) != 0 {
		t.Fatal("expected zero status for plain errors")
	}
}
