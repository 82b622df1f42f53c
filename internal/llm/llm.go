// Package llm holds the chat-completion clients used by the SQL and answer
// generation steps.
package llm

import (
	"context"
	"errors"
)

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

type Message struct {
	Role    Role
	Content string
}

// ChatModel sends one conversation to a model and returns the text of its reply.
type ChatModel interface {
	Generate(ctx context.Context, messages []Message) (string, error)
	Info() Info
}

type Info struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

var ErrEmptyResponse = errors.New("model returned an empty response")

func splitSystem(messages []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(messages))
	for _, message := range messages {
		if message.Role == RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += message.Content
			continue
		}
		rest = append(rest, message)
	}
	return system, rest
}
