package tokens

// Package tokens estimates token counts for context budgeting. The tiktoken
// counter is exact for OpenAI models; the estimator is a cheap fallback for
// models without a known codec.

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// Counter estimates token counts and knows model context limits.
type Counter interface {
	// Count returns the number of tokens text occupies for the given model.
	Count(text string, model string) (int, error)
	// ContextLimit returns the model's context window size in tokens.
	ContextLimit(model string) int
}

// DefaultContextLimit is used for models without a known limit. Conservative
// on purpose: overestimating the window makes context assembly overflow it.
const DefaultContextLimit = 4096

var contextLimits = map[string]int{
	"gpt-4":             8192,
	"gpt-4-32k":         32768,
	"gpt-4-turbo":       128000,
	"gpt-4o":            128000,
	"gpt-4o-mini":       128000,
	"gpt-3.5-turbo":     4096,
	"gpt-3.5-turbo-16k": 16384,
}

func lookupContextLimit(model string) int {
	if limit, ok := contextLimits[model]; ok {
		return limit
	}
	// Prefix match covers dated variants like gpt-4-0613.
	best := 0
	bestLen := 0
	for prefix, limit := range contextLimits {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best = limit
			bestLen = len(prefix)
		}
	}
	if best > 0 {
		return best
	}
	return DefaultContextLimit
}

// TiktokenCounter counts tokens with the tiktoken codec for the model,
// falling back to cl100k_base for unknown models. Codecs are cached
// per-model.
type TiktokenCounter struct {
	mu     sync.Mutex
	codecs map[string]tokenizer.Codec
}

var _ Counter = (*TiktokenCounter)(nil)

func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{
		codecs: make(map[string]tokenizer.Codec),
	}
}

func (c *TiktokenCounter) Count(text string, model string) (int, error) {
	codec, err := c.codecForModel(model)
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, errors.Wrapf(err, "encoding text for model %s", model)
	}
	return len(ids), nil
}

func (c *TiktokenCounter) ContextLimit(model string) int {
	return lookupContextLimit(model)
}

func (c *TiktokenCounter) codecForModel(model string) (tokenizer.Codec, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if codec, ok := c.codecs[model]; ok {
		return codec, nil
	}

	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, errors.Wrap(err, "creating tokenizer")
		}
	}
	c.codecs[model] = codec
	return codec, nil
}

// Estimator approximates tokens as len(text)/4, the usual rule of thumb for
// English text. Used in tests and for models without a codec.
type Estimator struct{}

var _ Counter = Estimator{}

func (Estimator) Count(text string, _ string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return (len(text) + 3) / 4, nil
}

func (Estimator) ContextLimit(model string) int {
	return lookupContextLimit(model)
}

// MessageTokens returns a message's precomputed estimate if present, counting
// on demand otherwise.
func MessageTokens(counter Counter, text string, precomputed int, model string) (int, error) {
	if precomputed > 0 {
		return precomputed, nil
	}
	return counter.Count(text, model)
}
