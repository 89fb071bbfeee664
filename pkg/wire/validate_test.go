package wire

import (
	"errors"
	"strings"
	"testing"
)

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var fe *FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FieldError", err)
	}
	return fe.Field
}

func TestLocalSendValidate(t *testing.T) {
	ok := LocalSendRequest{Channel: "C1", Text: "hello", ThreadTS: "1700000000.000100"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	missing := LocalSendRequest{Text: "hello"}
	if got := fieldOf(t, missing.Validate()); got != "channel" {
		t.Fatalf("field = %q, want channel", got)
	}

	long := LocalSendRequest{Channel: "C1", Text: strings.Repeat("x", MaxTextLength+1)}
	if got := fieldOf(t, long.Validate()); got != "text" {
		t.Fatalf("field = %q, want text", got)
	}

	badTS := LocalSendRequest{Channel: "C1", Text: "hi", ThreadTS: "not-a-ts"}
	if got := fieldOf(t, badTS.Validate()); got != "thread_ts" {
		t.Fatalf("field = %q, want thread_ts", got)
	}
}

func TestLocalReplyValidate(t *testing.T) {
	ok := LocalReplyRequest{ThreadID: "th_abc", Text: "hi"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
	missing := LocalReplyRequest{Text: "hi"}
	if got := fieldOf(t, missing.Validate()); got != "thread_id" {
		t.Fatalf("field = %q, want thread_id", got)
	}
}

func TestLocalReactValidate(t *testing.T) {
	ok := LocalReactRequest{Channel: "C1", Timestamp: "1700000000.000100", Emoji: "thumbsup"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	upper := LocalReactRequest{Channel: "C1", Timestamp: "1700000000.000100", Emoji: "ThumbsUp"}
	if got := fieldOf(t, upper.Validate()); got != "emoji" {
		t.Fatalf("field = %q, want emoji", got)
	}

	badTS := LocalReactRequest{Channel: "C1", Timestamp: "17000000", Emoji: "eyes"}
	if got := fieldOf(t, badTS.Validate()); got != "timestamp" {
		t.Fatalf("field = %q, want timestamp", got)
	}
}
