package domain

import "context"

// Completer is the text-completion contract for the external language model.
// The output is untrusted free text: no schema guarantee, no parsing promises.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Extractor converts raw uploaded bytes into plain text. Implementations fail
// with ErrUnsupportedFormat for unknown MIME types and ErrExtraction for
// malformed files.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}
