package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	base := New(KindRateLimit, "", nil)
	wrapped := fmt.Errorf("list envelopes: %w", base)

	if got := KindOf(wrapped); got != KindRateLimit {
		t.Fatalf("KindOf = %v, want %v", got, KindRateLimit)
	}
	if !Is(wrapped, KindRateLimit) {
		t.Fatal("Is should see through wrapping")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatal("unclassified errors should be KindUnknown")
	}
}

func TestDefaultMessage(t *testing.T) {
	err := New(KindStorage, "", errors.New("disk full"))
	if err.Error() != Message(KindStorage) {
		t.Fatalf("Error() = %q, want default storage message", err.Error())
	}
	if !errors.Is(err, err.Err) {
		t.Fatal("cause should be reachable through Unwrap")
	}

	custom := New(KindValidation, "username taken", nil)
	if custom.Error() != "username taken" {
		t.Fatalf("Error() = %q", custom.Error())
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindNetwork:    "NetworkError",
		KindTimeout:    "TimeoutError",
		KindValidation: "ValidationError",
		KindNotFound:   "NotFoundError",
		KindRateLimit:  "RateLimitError",
		KindService:    "ServiceError",
		KindUnknown:    "UnknownError",
		KindStorage:    "StorageError",
		KindClipboard:  "ClipboardError",
	}
	for kind, want := range cases {
		if kind.String() != want {
			t.Errorf("%d.String() = %q, want %q", kind, kind.String(), want)
		}
	}
}
