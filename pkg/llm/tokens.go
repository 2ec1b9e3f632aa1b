package llm

import (
	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// per message overhead of the chat format
const messageOverhead = 4

type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter picks the codec of model, falling back to cl100k_base for unknown models.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, errors.Wrap(err, "could not create tokenizer")
		}
	}
	return &TokenCounter{codec: codec}, nil
}

func (t *TokenCounter) Count(s string) int {
	ids, _, err := t.codec.Encode(s)
	if err != nil {
		return len(s) / 4
	}
	return len(ids)
}

func (t *TokenCounter) CountMessages(system string, msgs []conversation.LLMMessage) int {
	n := t.Count(system) + messageOverhead
	for _, m := range msgs {
		n += t.Count(m.Content) + messageOverhead
	}
	return n
}

// TrimToBudget drops the oldest messages until system and messages fit in
// budget tokens. The last message is always kept. A budget <= 0 disables trimming.
func (t *TokenCounter) TrimToBudget(system string, msgs []conversation.LLMMessage, budget int) []conversation.LLMMessage {
	if budget <= 0 {
		return msgs
	}

	dropped := 0
	for len(msgs) > 1 && t.CountMessages(system, msgs) > budget {
		msgs = msgs[1:]
		dropped++
	}
	if dropped > 0 {
		log.Debug().Int("dropped", dropped).Int("budget", budget).Msg("trimmed history to token budget")
	}
	return msgs
}
