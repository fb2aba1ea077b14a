package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	contractx "github.com/flamefinish/inventory-agent/agent/contract"
	promptx "github.com/flamefinish/inventory-agent/agent/prompt"
	sessionx "github.com/flamefinish/inventory-agent/agent/session"
	toolx "github.com/flamefinish/inventory-agent/agent/tool"
)

// FallbackReply is returned when the model produces no usable text or the
// tool loop exhausts its turn budget.
const FallbackReply = "Sorry, I couldn't process that."

const defaultMaxTurns = 10

// Config bounds one inbound message.
type Config struct {
	// MaxTurns caps model calls per inbound message so a model that keeps
	// requesting tools cannot loop forever.
	MaxTurns int `split_words:"true" default:"10"`
}

// Assistant drives the conversation for one inbound message: model call,
// tool dispatch, repeat, until the model answers in plain text.
type Assistant struct {
	chat     contractx.ChatClient
	sessions *sessionx.Store
	tools    *toolx.Dispatcher
	catalog  []openaisdk.ChatCompletionToolParam
	system   string
	maxTurns int
}

func New(chat contractx.ChatClient, sessions *sessionx.Store, tools *toolx.Dispatcher, cfg Config) (*Assistant, error) {
	if chat == nil {
		return nil, errors.New("chat client is required")
	}
	if sessions == nil {
		return nil, errors.New("session store is required")
	}
	if tools == nil {
		return nil, errors.New("tool dispatcher is required")
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &Assistant{
		chat:     chat,
		sessions: sessions,
		tools:    tools,
		catalog:  toolx.Catalog(),
		system:   promptx.System(),
		maxTurns: maxTurns,
	}, nil
}

// HandleMessage processes one message from sender and returns the reply. The
// sender's session is held exclusively for the whole call, so concurrent
// messages from one sender are handled in sequence. The exchange is committed
// to the session only when a reply is produced; a failed model call leaves
// the transcript untouched.
func (a *Assistant) HandleMessage(ctx context.Context, sender, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: message text is empty", contractx.ErrValidation)
	}

	sess, release := a.sessions.Acquire(sender)
	defer release()

	exchange := []sessionx.Message{openaisdk.UserMessage(text)}
	messages := make([]sessionx.Message, 0, sess.Len()+2)
	messages = append(messages, openaisdk.SystemMessage(a.system))
	messages = append(messages, sess.Messages()...)
	messages = append(messages, exchange...)

	reply := ""
	for turn := 0; turn < a.maxTurns; turn++ {
		completion, err := a.chat.Complete(ctx, messages, a.catalog)
		if err != nil {
			return "", fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
		}
		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("%w: completion has no choices", contractx.ErrSchemaViolation)
		}

		msg := completion.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			reply = strings.TrimSpace(msg.Content)
			if reply == "" {
				reply = FallbackReply
			}
			break
		}

		// The assistant turn, tool-call descriptors included, goes into the
		// transcript verbatim before any dispatch happens. Every requested
		// call then gets its result appended in issue order, so the pairing
		// the model API requires is complete before the next model call.
		assistantTurn := msg.ToParam()
		messages = append(messages, assistantTurn)
		exchange = append(exchange, assistantTurn)

		for _, call := range msg.ToolCalls {
			result := a.tools.Dispatch(ctx, call.Function.Name, call.Function.Arguments, sender)
			if result.Error != "" {
				log.Warn().
					Str("sender", sender).
					Str("tool", call.Function.Name).
					Str("error", result.Error).
					Msg("tool call failed")
			} else {
				log.Debug().
					Str("sender", sender).
					Str("tool", call.Function.Name).
					Msg("tool call dispatched")
			}
			toolTurn := openaisdk.ToolMessage(toolx.Payload(result), call.ID)
			messages = append(messages, toolTurn)
			exchange = append(exchange, toolTurn)
		}
	}

	if reply == "" {
		// Turn budget exhausted while the model was still requesting tools.
		log.Warn().Str("sender", sender).Int("max_turns", a.maxTurns).Msg("tool loop hit turn budget")
		reply = FallbackReply
	}

	exchange = append(exchange, openaisdk.AssistantMessage(reply))
	a.sessions.Commit(sess, exchange)

	return reply, nil
}
