// Package handler exposes build publishing over HTTP for CI jobs that
// cannot write to the searcher's disk.
package handler

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

// Multipart uploads carry the payload in the part named indexPart and each
// page's plain text in a part named pagePrefix + docname.
const (
	indexPart  = "index"
	pagePrefix = "page:"
)

type Handler struct {
	publisher *publisher.Publisher
	logger    *slog.Logger
}

func New(pub *publisher.Publisher) *Handler {
	return &Handler{
		publisher: pub,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Publish accepts a build for the book named in ?book=. The body is either
// the raw searchindex.js, optionally gzip-encoded, or a multipart form that
// also carries page texts for snippets.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := &ingestion.PublishRequest{Book: r.URL.Query().Get("book")}
	ctx = logger.With(ctx, "book", req.Book)

	body := http.MaxBytesReader(w, r.Body, validator.MaxPayloadBytes+1)
	var err error
	mediaType, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		err = readMultipart(body, params["boundary"], req)
	} else {
		req.Payload, err = readPayload(body, r.Header.Get("Content-Encoding"))
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.publisher.Publish(ctx, req)
	if err != nil {
		var invalid *validator.ValidationError
		if errors.As(err, &invalid) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": invalid.Fields,
			})
			return
		}
		status := apperrors.HTTPStatusCode(err)
		logger.FromContext(ctx).Error("publish failed", "error", err, "status_code", status)
		h.writeError(w, status, "publish failed")
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func readPayload(r io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case "", "identity":
		return io.ReadAll(r)
	case "gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("reading gzip body: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(io.LimitReader(zr, validator.MaxPayloadBytes+1))
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

func readMultipart(r io.Reader, boundary string, req *ingestion.PublishRequest) error {
	if boundary == "" {
		return errors.New("multipart body without boundary")
	}
	mr := multipart.NewReader(r, boundary)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading multipart body: %w", err)
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return err
		}
		switch name := part.FormName(); {
		case name == indexPart:
			req.Payload = data
		case strings.HasPrefix(name, pagePrefix):
			if req.Pages == nil {
				req.Pages = make(map[string]string)
			}
			req.Pages[strings.TrimPrefix(name, pagePrefix)] = string(data)
		}
	}
	if req.Payload == nil {
		return fmt.Errorf("multipart body has no %q part", indexPart)
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
