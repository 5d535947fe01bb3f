package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"image-moderation/internal/pipeline"

	"github.com/aws/aws-lambda-go/events"
)

// GatewayHandler serves the pipeline behind an API Gateway proxy integration.
type GatewayHandler struct {
	pipeline *pipeline.Pipeline
}

func NewGatewayHandler(p *pipeline.Pipeline) *GatewayHandler {
	return &GatewayHandler{pipeline: p}
}

func (h *GatewayHandler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	slog.Info("received event", "request_id", req.RequestContext.RequestID, "path", req.Path, "base64", req.IsBase64Encoded)

	contentType := req.Headers["content-type"]
	if contentType == "" {
		contentType = req.Headers["Content-Type"]
	}

	result, err := h.pipeline.Process(ctx, []byte(req.Body), contentType, req.IsBase64Encoded)
	if err != nil {
		status := StatusForError(err)
		slog.Error("error processing image", "status", status, "error", err)
		return gatewayResponse(status, failureHeaders(), errorResponse(err)), nil
	}

	slog.Info("image processed successfully", "file_name", result.FileName, "final_key", result.FinalKey)
	return gatewayResponse(http.StatusOK, successHeaders(), uploadResponse(result)), nil
}

func gatewayResponse(status int, headers map[string]string, body any) events.APIGatewayProxyResponse {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("error serializing response body", "error", err)
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    failureHeaders(),
			Body:       `{"error":"error serializing response body","message":"` + failureMessage + `"}`,
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(data),
	}
}
