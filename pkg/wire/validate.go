package wire

import (
	"fmt"
	"regexp"
)

// MaxTextLength matches the platform's hard cap on message body size.
const MaxTextLength = 40000

var (
	messageTSPattern = regexp.MustCompile(`^\d+\.\d+$`)
	emojiPattern     = regexp.MustCompile(`^[a-z0-9_+-]+$`)
)

// FieldError reports which field of a local API request failed validation,
// so callers get a 4xx with an actionable message instead of a generic one.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func validateText(field, text string) error {
	if text == "" {
		return &FieldError{Field: field, Reason: "required"}
	}
	if len(text) > MaxTextLength {
		return &FieldError{Field: field, Reason: fmt.Sprintf("exceeds %d bytes", MaxTextLength)}
	}
	return nil
}

// ValidateMessageTS checks the platform's seconds.fraction timestamp format.
func ValidateMessageTS(field, ts string) error {
	if ts == "" {
		return &FieldError{Field: field, Reason: "required"}
	}
	if !messageTSPattern.MatchString(ts) {
		return &FieldError{Field: field, Reason: "must look like 1700000000.000100"}
	}
	return nil
}

// Validate checks a /send request before any network call.
func (r *LocalSendRequest) Validate() error {
	if r.Channel == "" {
		return &FieldError{Field: "channel", Reason: "required"}
	}
	if err := validateText("text", r.Text); err != nil {
		return err
	}
	if r.ThreadTS != "" {
		return ValidateMessageTS("thread_ts", r.ThreadTS)
	}
	return nil
}

// Validate checks a /reply request. Thread-id resolution happens later,
// against the thread registry.
func (r *LocalReplyRequest) Validate() error {
	if r.ThreadID == "" {
		return &FieldError{Field: "thread_id", Reason: "required"}
	}
	return validateText("text", r.Text)
}

// Validate checks a /react request.
func (r *LocalReactRequest) Validate() error {
	if r.Channel == "" {
		return &FieldError{Field: "channel", Reason: "required"}
	}
	if err := ValidateMessageTS("timestamp", r.Timestamp); err != nil {
		return err
	}
	if r.Emoji == "" {
		return &FieldError{Field: "emoji", Reason: "required"}
	}
	if !emojiPattern.MatchString(r.Emoji) {
		return &FieldError{Field: "emoji", Reason: "only lowercase letters, digits, _ + - allowed"}
	}
	return nil
}
