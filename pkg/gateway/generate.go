package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"themeforge/pkg/provider/httpapi"
	providertypes "themeforge/pkg/provider/types"
)

const (
	// StatusClientClosedRequest is reported when the caller went away before
	// the model answered.
	StatusClientClosedRequest = 499

	maxRequestBody = 32 << 20

	quotaExceededMessage = "You've reached your free limit. Please upgrade to continue."
)

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := subjectFrom(ctx)
	log := s.log.With("request_id", requestID(ctx))

	status, ok := s.quota.Reserve(subject)
	if !ok {
		log.Info("Free-tier quota exhausted", "requests_used", status.RequestsUsed)
		writeAPIError(w, providertypes.SubscriptionRequired(quotaExceededMessage, status.RequestsRemaining))
		return
	}
	recorded := false
	defer func() {
		if !recorded {
			s.quota.Release(subject)
		}
	}()

	var body httpapi.GenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&body); err != nil {
		writeAPIError(w, providertypes.ValidationError("Invalid request body", map[string]any{"details": err.Error()}))
		return
	}
	if len(body.Messages) == 0 {
		writeAPIError(w, providertypes.ValidationError("Invalid request body", map[string]any{
			"details": "messages must contain at least one message",
		}))
		return
	}

	completion, err := s.provider.Complete(ctx, providertypes.Request{System: s.system, Messages: body.Messages})
	if err != nil {
		s.writeFailure(ctx, w, err)
		return
	}

	result, err := s.parser.Parse(completion.Text)
	if err != nil {
		s.writeFailure(ctx, w, err)
		return
	}

	s.quota.Record(subject, completion.Metadata.Usage)
	recorded = true
	if usage := completion.Metadata.Usage; usage != nil {
		log.Debug("Generation usage recorded",
			"provider", completion.Metadata.Provider,
			"model", completion.Metadata.Model,
			"input_tokens", usage.InputTokens,
			"output_tokens", usage.OutputTokens,
		)
	}

	writeJSON(w, http.StatusOK, result)
}

// writeFailure maps a generation failure onto the error contract clients
// decode: categorized errors as JSON, aborts as 499, everything else as an
// opaque 500.
func (s *Server) writeFailure(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		http.Error(w, "Request aborted by user", StatusClientClosedRequest)
		return
	}
	if apiErr, ok := providertypes.AsAPIError(err); ok {
		writeAPIError(w, apiErr)
		return
	}

	s.log.Error("Theme generation failed", "request_id", requestID(ctx), "error", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

func writeAPIError(w http.ResponseWriter, apiErr *providertypes.APIError) {
	status := apiErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, apiErr)
}
