package refine

import "fmt"

// Validation limits enforced upstream of any network call.
const (
	MaxContentLen     = 10000
	MaxAttachments    = 5
	MaxAttachmentSize = 5 << 20 // 5 MB per image
)

// Attachment is an image supplied alongside the content.
type Attachment struct {
	Name     string
	MimeType string
	Data     []byte
}

// Request carries the user content and generation parameters for one
// enhancement call. The provider uses its own defaults when fields are
// zero/nil. A Request is immutable per attempt: its body is serialized
// once and retried verbatim.
type Request struct {
	Content     string
	Mode        Mode
	FileType    string // target file type hint for the prompt template; empty = plain text
	Attachments []Attachment
	Model       string   // model ID, provider-specific; empty = provider default
	MaxTokens   int      // 0 = provider default
	Temperature *float64 // nil = provider default
}

// Validate checks the request against the closed mode set and the
// content/attachment limits. Providers assume they only ever receive
// validated requests.
func (r Request) Validate() error {
	if r.Content == "" {
		return fmt.Errorf("content is empty: %w", ErrValidation)
	}
	if len(r.Content) > MaxContentLen {
		return fmt.Errorf("content exceeds %d characters: %w", MaxContentLen, ErrValidation)
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("unknown mode %q: %w", r.Mode, ErrValidation)
	}
	if len(r.Attachments) > MaxAttachments {
		return fmt.Errorf("at most %d attachments allowed, got %d: %w", MaxAttachments, len(r.Attachments), ErrValidation)
	}
	for _, a := range r.Attachments {
		if len(a.Data) > MaxAttachmentSize {
			return fmt.Errorf("attachment %q exceeds %d bytes: %w", a.Name, MaxAttachmentSize, ErrValidation)
		}
	}
	if r.Temperature != nil {
		if *r.Temperature < 0 || *r.Temperature > 2 {
			return fmt.Errorf("temperature must be in [0, 2], got %g: %w", *r.Temperature, ErrValidation)
		}
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative, got %d: %w", r.MaxTokens, ErrValidation)
	}
	return nil
}
