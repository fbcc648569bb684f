package relay

import (
	"log/slog"

	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/ai-relay/internal/upstream"
)

const assistantSystemPrompt = "You are an AI assistant for a freelancer's project workspace. " +
	"Answer questions about the user's projects, suggest next steps and draft short updates " +
	"for clients. Keep answers focused and actionable."

// handleAssistant relays a single-turn prompt and then tries to record the
// exchange. The caller always gets a record: the stored one, or a synthesized
// one when the write fails.
func (s *Service) handleAssistant(ctx *fasthttp.RequestCtx) (any, error) {
	req, err := parseAssistantRequest(ctx.PostBody(), string(ctx.Request.Header.Peek("Authorization")))
	if err != nil {
		return nil, err
	}

	msgs := []upstream.Message{
		{Role: "system", Content: assistantSystemPrompt},
		{Role: "user", Content: req.Message},
	}

	reqID, _ := ctx.UserValue("request_id").(string)
	out, err := s.complete(ctx, reqID, routeAssistant, msgs)
	if err != nil {
		return nil, err
	}

	res := s.persist(ctx, req, out.Content, out.TotalTokens)
	if res.Outcome == FellBack {
		s.log.WarnContext(ctx, "store_write_failed",
			slog.String("request_id", reqID),
			slog.String("store", s.storeName()),
			slog.String("error", res.Err.Error()),
		)
	}

	return res.Record, nil
}
