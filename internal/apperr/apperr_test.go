package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{Validation("bad %s", "code"), http.StatusBadRequest},
		{NotFound("missing"), http.StatusNotFound},
		{Unavailable("down"), http.StatusServiceUnavailable},
		{Internal("db", errors.New("boom")), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := c.err.Status(); got != c.want {
			t.Errorf("%v: got %d, want %d", c.err, got, c.want)
		}
	}
}

func TestAsWrapped(t *testing.T) {
	base := NotFound("invoice %s not found", "x")
	wrapped := fmt.Errorf("lookup: %w", base)

	got := As(wrapped)
	if got.Kind != KindNotFound {
		t.Errorf("expected not found kind, got %v", got.Kind)
	}
	if !Is(wrapped, KindNotFound) {
		t.Error("Is should see through wrapping")
	}

	plain := As(errors.New("socket closed"))
	if plain.Kind != KindInternal || plain.Status() != http.StatusInternalServerError {
		t.Errorf("plain errors should map to internal, got %v", plain.Kind)
	}
}
