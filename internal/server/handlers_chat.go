package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ragstack/ragserve/internal/chat"
	"github.com/ragstack/ragserve/internal/rag"
)

type chatRequest struct {
	Messages          []chat.Message `json:"messages" binding:"required"`
	SessionID         string         `json:"sessionId"`
	UseRAG            bool           `json:"useRag"`
	FilterSource      string         `json:"filterSource"`
	Temperature       *float64       `json:"temperature"`
	TopP              *float64       `json:"topP"`
	TopK              *int           `json:"topK"`
	MaxTokens         *int           `json:"maxTokens"`
	RepetitionPenalty *float64       `json:"repetitionPenalty"`
	StopBefore        []string       `json:"stopBefore"`
}

// buildMessages assembles the upstream message list: optional RAG
// context as a system message, then session history, then the caller's
// messages.
func (s *Server) buildMessages(ctx context.Context, req *chatRequest) []chat.Message {
	var messages []chat.Message

	if req.UseRAG {
		if query := lastUserMessage(req.Messages); query != "" {
			var filter map[string]any
			if req.FilterSource != "" {
				filter = map[string]any{"document_source": req.FilterSource}
			}

			results := s.retriever.Search(ctx, query, s.retriever.Defaults(), filter)
			if docContext := s.retriever.BuildContext(results); docContext != "" {
				messages = append(messages, chat.Message{
					Role:    "system",
					Content: "다음 문서를 참고하여 답변하세요.\n\n" + docContext,
				})
			}
		}
	}

	if req.SessionID != "" {
		for _, turn := range s.memory.History(req.SessionID) {
			messages = append(messages,
				chat.Message{Role: "user", Content: turn.UserMessage},
				chat.Message{Role: "assistant", Content: turn.AssistantMessage},
			)
		}
	}

	return append(messages, req.Messages...)
}

func lastUserMessage(messages []chat.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}

func (s *Server) handleChatCompletion(c *gin.Context) {
	if s.chatClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "chat service is not configured",
		})
		return
	}

	model := c.Param("model")
	if err := chat.ValidateModel(model); err != nil {
		abortWithError(c, err)
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, &rag.ValidationError{Msg: err.Error()})
		return
	}

	upstream := &chat.Request{
		Messages:          s.buildMessages(c.Request.Context(), &req),
		Temperature:       req.Temperature,
		TopP:              req.TopP,
		TopK:              req.TopK,
		MaxTokens:         req.MaxTokens,
		RepetitionPenalty: req.RepetitionPenalty,
		StopBefore:        req.StopBefore,
	}

	resp, err := s.chatClient.Complete(c.Request.Context(), model, upstream)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if req.SessionID != "" {
		if userMsg := lastUserMessage(req.Messages); userMsg != "" {
			s.memory.Append(req.SessionID, userMsg, resp.Result.Message.Content)
		}
	}

	c.JSON(http.StatusOK, resp)
}

// handleChatStream proxies a streaming completion, passing SSE events
// through as they arrive. Streamed responses are not recorded in
// session memory.
func (s *Server) handleChatStream(c *gin.Context) {
	if s.chatClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "chat service is not configured",
		})
		return
	}

	model := c.Param("model")
	if err := chat.ValidateModel(model); err != nil {
		abortWithError(c, err)
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, &rag.ValidationError{Msg: err.Error()})
		return
	}

	upstream := &chat.Request{
		Messages:          s.buildMessages(c.Request.Context(), &req),
		Temperature:       req.Temperature,
		TopP:              req.TopP,
		TopK:              req.TopK,
		MaxTokens:         req.MaxTokens,
		RepetitionPenalty: req.RepetitionPenalty,
		StopBefore:        req.StopBefore,
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	if err := s.chatClient.Stream(c.Request.Context(), model, upstream, c.Writer); err != nil {
		// Headers are already out; the best we can do is log and close.
		c.Error(err)
	}
}
