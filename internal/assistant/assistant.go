// Package assistant holds a question-and-answer conversation about one analysed dataset.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/datalens-cli/internal/ai"
	"github.com/KaramelBytes/datalens-cli/internal/analysis"
	"github.com/KaramelBytes/datalens-cli/internal/utils"
)

// ErrEmptyQuestion is returned by Ask for blank questions.
var ErrEmptyQuestion = errors.New("question cannot be empty")

const systemPreamble = `You are a data analysis assistant. Answer questions about the dataset described below.
Base every answer on the profile and the data quality findings. When a finding matters to the
question, name the column and the issue. Say so plainly when the profile does not contain the answer.`

// Options controls how the conversation talks to the runtime.
type Options struct {
	Model         string
	MaxTokens     int
	Temperature   float64
	ContextTokens int
}

// Message is one turn of the conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is not safe for concurrent use.
type Conversation struct {
	Dataset  string
	Messages []Message

	rt      ai.Runtime
	opt     Options
	context string
	usage   ai.Usage
}

// New builds a conversation grounded on the report. The report markdown is truncated to
// opt.ContextTokens when that is positive.
func New(rt ai.Runtime, rep *analysis.Report, opt Options) *Conversation {
	ctxText := rep.Markdown()
	if opt.ContextTokens > 0 {
		ctxText = utils.TruncateToTokenLimit(ctxText, opt.ContextTokens)
	}
	return &Conversation{
		Dataset: rep.Name,
		rt:      rt,
		opt:     opt,
		context: ctxText,
	}
}

// Context returns the dataset context sent as the system prompt.
func (c *Conversation) Context() string { return c.context }

// ContextTokens estimates the size of the system context.
func (c *Conversation) ContextTokens() int { return utils.CountTokens(c.context) }

// Usage accumulates token usage reported by the runtime.
func (c *Conversation) Usage() ai.Usage { return c.usage }

// Reset drops the history but keeps the dataset context.
func (c *Conversation) Reset() { c.Messages = nil }

func (c *Conversation) request(question string) ai.GenerateRequest {
	msgs := make([]ai.Message, 0, len(c.Messages)+2)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: systemPreamble + "\n\n" + c.context})
	for _, m := range c.Messages {
		msgs = append(msgs, ai.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: question})
	return ai.GenerateRequest{
		Model:       c.opt.Model,
		Messages:    msgs,
		MaxTokens:   c.opt.MaxTokens,
		Temperature: c.opt.Temperature,
	}
}

// Ask sends the question with the full history. Both turns are recorded only when the
// runtime answers.
func (c *Conversation) Ask(ctx context.Context, question string) (Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Message{}, ErrEmptyQuestion
	}
	resp, err := c.rt.Generate(ctx, c.request(question))
	if err != nil {
		return Message{}, err
	}
	answer := resp.Text()
	if answer == "" {
		return Message{}, fmt.Errorf("no content returned from model")
	}
	c.addUsage(resp.Usage)
	return c.record(question, answer), nil
}

// AskStream behaves like Ask but forwards partial output to onDelta when the runtime
// supports streaming. Other runtimes fall back to a single delta with the whole answer.
// Usage for streamed answers is an estimate from the local token counter.
func (c *Conversation) AskStream(ctx context.Context, question string, onDelta func(string)) (Message, error) {
	sr, ok := c.rt.(ai.StreamRuntime)
	if !ok {
		m, err := c.Ask(ctx, question)
		if err == nil {
			onDelta(m.Content)
		}
		return m, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return Message{}, ErrEmptyQuestion
	}
	req := c.request(question)
	var sb strings.Builder
	err := sr.GenerateStream(ctx, req, func(d string) {
		sb.WriteString(d)
		onDelta(d)
	})
	if err != nil {
		return Message{}, err
	}
	answer := strings.TrimSpace(sb.String())
	if answer == "" {
		return Message{}, fmt.Errorf("no content returned from model")
	}
	c.addUsage(estimateUsage(req, answer))
	return c.record(question, answer), nil
}

// estimateUsage counts a streamed exchange locally; the stream endpoints do not report usage.
func estimateUsage(req ai.GenerateRequest, answer string) ai.Usage {
	prompt := 0
	for _, m := range req.Messages {
		prompt += utils.CountTokens(m.Content)
	}
	completion := utils.CountTokens(answer)
	return ai.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

func (c *Conversation) addUsage(u ai.Usage) {
	c.usage.PromptTokens += u.PromptTokens
	c.usage.CompletionTokens += u.CompletionTokens
	c.usage.TotalTokens += u.TotalTokens
}

func (c *Conversation) record(question, answer string) Message {
	now := time.Now()
	c.Messages = append(c.Messages, Message{ID: uuid.New().String(), Role: ai.RoleUser, Content: question, Timestamp: now})
	reply := Message{ID: uuid.New().String(), Role: ai.RoleAssistant, Content: answer, Timestamp: now}
	c.Messages = append(c.Messages, reply)
	return reply
}
