// Package validator checks publish requests before anything is written. It
// decodes the payload with the same loader the searcher uses, so a build
// that passes here will load.
package validator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

const (
	maxBookNameLength = 128
	MaxPayloadBytes   = 256 << 20
	maxDocNameLength  = 1024
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// ValidatePublishRequest checks the request fields and decodes the payload.
// It returns the decoded Store so callers can report its generation.
func ValidatePublishRequest(req *ingestion.PublishRequest, opts ...index.Option) (*index.Store, error) {
	errs := make(map[string]string)

	book := strings.TrimSpace(req.Book)
	switch {
	case book == "":
		errs["book"] = "book is required"
	case len(book) > maxBookNameLength:
		errs["book"] = fmt.Sprintf("book must be at most %d characters", maxBookNameLength)
	}

	var store *index.Store
	switch {
	case len(req.Payload) == 0:
		errs["payload"] = "payload is required"
	case len(req.Payload) > MaxPayloadBytes:
		errs["payload"] = fmt.Sprintf("payload must be at most %d bytes", MaxPayloadBytes)
	default:
		s, err := index.Load(req.Payload, opts...)
		var malformed *index.MalformedIndexError
		switch {
		case errors.As(err, &malformed):
			errs["payload"] = fmt.Sprintf("%s: %s", malformed.Field, malformed.Reason)
		case err != nil:
			errs["payload"] = err.Error()
		default:
			store = s
		}
	}

	if store != nil && len(req.Pages) > 0 {
		known := make(map[string]struct{}, store.NumDocuments())
		for id := range store.NumDocuments() {
			doc, _ := store.Document(id)
			known[doc.Name] = struct{}{}
		}
		for name := range req.Pages {
			if len(name) > maxDocNameLength {
				errs["pages"] = fmt.Sprintf("document name must be at most %d characters", maxDocNameLength)
				break
			}
			if _, ok := known[name]; !ok {
				errs["pages"] = fmt.Sprintf("page %q is not a document of this build", name)
				break
			}
		}
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return store, nil
}
