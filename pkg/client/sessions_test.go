package client

import (
	"errors"
	"testing"
)

func TestSessionRegistry(t *testing.T) {
	r := newSessionRegistry()

	h := SessionHandlerFunc(func(SessionMessage) {})
	if err := r.register("qs_1", h); err != nil {
		t.Fatalf("register() error = %v", err)
	}

	if _, ok := r.lookup("qs_1"); !ok {
		t.Error("lookup() after register = !ok")
	}
	if _, ok := r.lookup("qs_2"); ok {
		t.Error("lookup() of unknown id = ok")
	}

	if err := r.register("qs_1", h); !errors.Is(err, ErrSessionExists) {
		t.Errorf("duplicate register() error = %v, want ErrSessionExists", err)
	}

	r.unregister("qs_1")
	if _, ok := r.lookup("qs_1"); ok {
		t.Error("lookup() after unregister = ok")
	}

	// Unregistering an unknown id is a no-op.
	r.unregister("qs_9")
}
