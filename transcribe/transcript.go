package transcribe

import (
	"context"
)

// Word is one recognised word with its timing in seconds
type Word struct {
	Word       string   `json:"word"`
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Phrase is an utterance-level span of text
type Phrase struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcript is the full recognition result. Consumers treat it as read-only.
type Transcript struct {
	FullText string   `json:"full_text"`
	Words    []Word   `json:"words"`
	Phrases  []Phrase `json:"phrases"`
}

// Empty returns a transcript that serialises with empty arrays rather than nulls
func Empty() *Transcript {
	return &Transcript{
		Words:   []Word{},
		Phrases: []Phrase{},
	}
}

// Options are the per-request recognition options
type Options struct {
	Language string // BCP-47 tag, "en" when empty
	MIMEType string // sniffed from the audio when empty
}

// Transcriber turns raw audio bytes into a Transcript. Implementations do not
// retry; a failure is reported once to the caller.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, opts Options) (*Transcript, error)
}
