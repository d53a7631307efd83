package rewrite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/levkin/ragbase/llm"
	"github.com/levkin/ragbase/model"
)

const (
	// DefaultTimeout bounds the LLM rewrite call. A slow rewrite is worth
	// less than a fast retrieval with the original query.
	DefaultTimeout = 5 * time.Second

	// minRewrittenRunes guards against degenerate model output.
	minRewrittenRunes = 3

	// maxHistoryMessages caps how much conversation is serialized into the
	// rewrite prompt.
	maxHistoryMessages = 10
)

const systemPrompt = `Ты переформулируешь уточняющие вопросы пользователя в самодостаточные поисковые запросы.
Используй историю диалога ниже, чтобы раскрыть местоимения и отсылки.
Верни только переформулированный запрос, без пояснений и кавычек.

История диалога:
%s`

// Rewriter resolves anaphoric follow-up questions into self-contained
// queries using an LLM. It never fails: every degradation path falls back to
// the original query with a reason attached.
type Rewriter struct {
	llm     llm.Provider
	timeout time.Duration
	logger  *slog.Logger
}

// NewRewriter creates a rewriter. A non-positive timeout falls back to
// DefaultTimeout.
func NewRewriter(provider llm.Provider, timeout time.Duration, logger *slog.Logger) *Rewriter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Rewriter{
		llm:     provider,
		timeout: timeout,
		logger:  logger,
	}
}

type completion struct {
	response llm.Response
	err      error
}

// Rewrite returns the query retrieval should run with. The LLM call is raced
// against the configured timeout; a losing call is not aborted, its result is
// simply discarded.
func (r *Rewriter) Rewrite(ctx context.Context, query string, history []model.HistoryMessage) model.RewriteResult {
	result := model.RewriteResult{OriginalQuery: query}

	needed, reason := NeedsRewrite(query, history)
	result.Reason = reason
	if !needed {
		return result
	}

	if r.llm == nil {
		result.Reason = "no LLM provider configured"
		return result
	}

	request := llm.Request{
		System: fmt.Sprintf(systemPrompt, serializeHistory(history)),
		Messages: []llm.Message{
			{Role: "user", Content: query},
		},
		Temperature: 0.1,
		MaxTokens:   200,
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	done := make(chan completion, 1)
	go func() {
		response, err := r.llm.Complete(ctx, request)
		done <- completion{response: response, err: err}
	}()

	select {
	case <-ctx.Done():
		result.Reason = "context canceled before rewrite completed"
		return result
	case <-timer.C:
		r.logger.Warn("Query rewrite timed out, using original query",
			slog.Duration("timeout", r.timeout))
		result.Reason = fmt.Sprintf("rewrite timed out after %s", r.timeout)
		return result
	case outcome := <-done:
		if outcome.err != nil {
			r.logger.Warn("Query rewrite failed, using original query",
				slog.String("error", outcome.err.Error()))
			result.Reason = "rewrite call failed: " + outcome.err.Error()
			return result
		}

		rewritten := strings.TrimSpace(strings.Trim(strings.TrimSpace(outcome.response.Content), `"«»`))
		if len([]rune(rewritten)) < minRewrittenRunes {
			result.Reason = "rewritten query too short"
			return result
		}

		result.RewrittenQuery = rewritten
		result.WasRewritten = true
		result.Reason = reason
		return result
	}
}

// serializeHistory renders the most recent turns as role-prefixed lines.
func serializeHistory(history []model.HistoryMessage) string {
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}

	var builder strings.Builder
	for _, message := range history {
		builder.WriteString(message.Role)
		builder.WriteString(": ")
		builder.WriteString(strings.TrimSpace(message.Content))
		builder.WriteString("\n")
	}
	return builder.String()
}
