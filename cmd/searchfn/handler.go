package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
)

const maxQueryLength = 1024

// Handler answers API Gateway proxy requests from a warm search service.
//
//	GET .../search?q=&book=&limit=
//	GET .../books
type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if id := req.RequestContext.RequestID; id != "" {
		ctx = logger.WithRequestID(ctx, id)
	}
	if req.HTTPMethod != "" && req.HTTPMethod != http.MethodGet {
		return respond(http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"}), nil
	}
	if strings.HasSuffix(strings.TrimRight(req.Path, "/"), "/books") {
		return respond(http.StatusOK, map[string]any{"books": h.svc.Books()}), nil
	}
	return h.search(ctx, req), nil
}

func (h *Handler) search(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	params := req.QueryStringParameters
	query := params["q"]
	if len(query) > maxQueryLength {
		return respond(http.StatusBadRequest, map[string]string{"error": "query too long"})
	}
	limit := 0
	if v := params["limit"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return respond(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = n
	}

	resp, err := h.svc.Search(ctx, service.Request{
		Book:    params["book"],
		Query:   query,
		Limit:   limit,
		Session: header(req.Headers, middleware.SessionHeader),
		Source:  "lambda",
	})
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		switch {
		case apperrors.Is(err, apperrors.ErrSuperseded):
			return respond(http.StatusConflict, map[string]string{"error": "superseded"})
		case status >= http.StatusInternalServerError:
			logger.FromContext(ctx).Error("search failed", "error", err)
			return respond(status, map[string]string{"error": "search failed"})
		default:
			return respond(status, map[string]string{"error": err.Error()})
		}
	}
	return respond(http.StatusOK, resp)
}

// header looks name up case-insensitively; API Gateway forwards headers
// with the client's casing.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func respond(status int, body any) events.APIGatewayProxyResponse {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		status, data = http.StatusInternalServerError, []byte(`{"error":"internal error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":                "application/json",
			"Access-Control-Allow-Origin": "*",
		},
		Body: string(data),
	}
}
