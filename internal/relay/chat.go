package relay

import (
	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/ai-relay/internal/upstream"
)

const chatSystemPrompt = "You are a helpful assistant inside a project management app for freelancers. " +
	"Help the user plan projects, break work into tasks, estimate effort, write client messages " +
	"and keep track of deadlines. Be concise and practical."

type chatResponse struct {
	Response string `json:"response"`
}

// handleChat relays one message plus caller-supplied history. Nothing is stored.
func (s *Service) handleChat(ctx *fasthttp.RequestCtx) (any, error) {
	req, err := parseChatRequest(ctx.PostBody())
	if err != nil {
		return nil, err
	}

	msgs := make([]upstream.Message, 0, len(req.History)+2)
	msgs = append(msgs, upstream.Message{Role: "system", Content: chatSystemPrompt})
	msgs = append(msgs, req.History...)
	msgs = append(msgs, upstream.Message{Role: "user", Content: req.Message})

	reqID, _ := ctx.UserValue("request_id").(string)
	out, err := s.complete(ctx, reqID, routeChat, msgs)
	if err != nil {
		return nil, err
	}

	return chatResponse{Response: out.Content}, nil
}
