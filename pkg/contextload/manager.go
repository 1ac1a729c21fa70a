package contextload

// Package contextload assembles the message context that is prepended when a
// new request is sent from a conversation: it resolves which linked and
// ancestor conversations contribute, prices their messages in tokens and cuts
// the result down to the model's budget with the configured truncation
// strategy.

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/vmanoilov/bettergpt/pkg/conversation"
	"github.com/vmanoilov/bettergpt/pkg/links"
	"github.com/vmanoilov/bettergpt/pkg/tokens"
)

// DefaultReserveFraction is the share of the model's context window held back
// for the new user message and the model's response when no explicit
// MaxTokens is configured.
const DefaultReserveFraction = 0.25

type Manager struct {
	store   conversation.Store
	links   links.Manager
	counter tokens.Counter

	reserveFraction float64
}

type ManagerOption func(*Manager)

// WithReserveFraction overrides the share of the model limit held back when
// deriving the budget. Must be in [0, 1).
func WithReserveFraction(f float64) ManagerOption {
	return func(m *Manager) {
		m.reserveFraction = f
	}
}

func NewManager(
	store conversation.Store,
	linkManager links.Manager,
	counter tokens.Counter,
	options ...ManagerOption,
) *Manager {
	ret := &Manager{
		store:           store,
		links:           linkManager,
		counter:         counter,
		reserveFraction: DefaultReserveFraction,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Load assembles the context for a conversation. The operation is read-only
// apart from lazily persisting a default context config on first access;
// conversations themselves are never mutated.
//
// Dangling links (a linked conversation that no longer exists) are skipped
// with a warning rather than failing the load.
func (m *Manager) Load(ctx context.Context, id conversation.ConversationID) (*Result, error) {
	conv, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	cfg, err := m.loadConfig(ctx, id)
	if err != nil {
		return nil, err
	}

	candidateIDs, err := m.resolveCandidates(ctx, id, cfg)
	if err != nil {
		return nil, err
	}

	candidates, err := m.fetchCandidates(ctx, conv.Model, candidateIDs)
	if err != nil {
		return nil, err
	}

	budget := m.budgetFor(conv.Model, cfg)

	return m.assemble(candidates, cfg.Strategy, budget), nil
}

func (m *Manager) loadConfig(ctx context.Context, id conversation.ConversationID) (*conversation.ContextConfig, error) {
	cfg, err := m.store.GetContextConfig(ctx, id)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, conversation.ErrNotFound) {
		return nil, err
	}

	cfg = conversation.DefaultContextConfig(id)
	if err := m.store.SaveContextConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveCandidates determines which conversations contribute to context, in
// a deterministic order: parent first, then explicitly included links, then
// auto-loaded link partners. The conversation itself is never a candidate.
func (m *Manager) resolveCandidates(
	ctx context.Context,
	id conversation.ConversationID,
	cfg *conversation.ContextConfig,
) ([]conversation.ConversationID, error) {
	var ordered []conversation.ConversationID
	seen := map[conversation.ConversationID]bool{id: true}
	add := func(candidateID conversation.ConversationID) {
		if seen[candidateID] {
			return
		}
		seen[candidateID] = true
		ordered = append(ordered, candidateID)
	}

	if cfg.AutoLoadParent {
		// Single hop by design; the full chain is only pulled in through
		// AutoLoadLinks.
		chain, err := m.links.AncestorChain(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(chain) > 0 {
			add(chain[0].ID)
		}
	}

	set, err := m.links.Links(ctx, id)
	if err != nil {
		return nil, err
	}

	byID := make(map[conversation.LinkID]*links.ConversationLink)
	for _, link := range set.All() {
		byID[link.ID] = link
	}

	for _, linkID := range cfg.IncludedLinks {
		link, ok := byID[linkID]
		if !ok {
			log.Warn().
				Str("conversation_id", id.String()).
				Str("link_id", linkID.String()).
				Msg("included link not attached to conversation, skipping")
			continue
		}
		add(link.OtherEndpoint(id))
	}

	if cfg.AutoLoadLinks {
		for _, link := range set.All() {
			add(link.OtherEndpoint(id))
		}
	}

	return ordered, nil
}

// fetchCandidates loads the candidate conversations and prices their
// messages. Loads fan out under one errgroup; a missing conversation is a
// tolerated inconsistency and yields a nil slot.
func (m *Manager) fetchCandidates(
	ctx context.Context,
	model string,
	ids []conversation.ConversationID,
) ([]*candidate, error) {
	slots := make([]*candidate, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, candidateID := range ids {
		i, candidateID := i, candidateID
		g.Go(func() error {
			conv, err := m.store.Get(gctx, candidateID)
			if err != nil {
				if errors.Is(err, conversation.ErrNotFound) {
					log.Warn().
						Str("conversation_id", candidateID.String()).
						Msg("linked conversation no longer exists, skipping source")
					return nil
				}
				return err
			}

			c := &candidate{conv: conv, tokens: make([]int, len(conv.Messages))}
			for mi, msg := range conv.Messages {
				cost, err := tokens.MessageTokens(m.counter, msg.Text, msg.Tokens, model)
				if err != nil {
					return errors.Wrapf(err, "counting tokens for message %s", msg.ID)
				}
				c.tokens[mi] = cost
				c.total += cost
			}
			slots[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]*candidate, 0, len(slots))
	for _, c := range slots {
		if c != nil && c.messageCount() > 0 {
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

func (m *Manager) budgetFor(model string, cfg *conversation.ContextConfig) int {
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	limit := m.counter.ContextLimit(model)
	return limit - int(float64(limit)*m.reserveFraction)
}

func (m *Manager) assemble(candidates []*candidate, strategy conversation.TruncationStrategy, budget int) *Result {
	unbudgeted := 0
	for _, c := range candidates {
		unbudgeted += c.total
	}

	var mask keepMask
	if unbudgeted <= budget {
		mask = newKeepMask(candidates, true)
	} else {
		switch strategy {
		case conversation.TruncationRecent:
			mask = truncateRecent(candidates, budget)
		case conversation.TruncationRelevant:
			mask = truncateRelevant(candidates, budget)
		default:
			mask = truncateBalanced(candidates, budget)
		}
	}

	result := &Result{}
	truncatedSources := 0
	for ci, c := range candidates {
		sourceTokens := 0
		sourceCount := 0
		for mi, msg := range c.conv.Messages {
			if !mask[ci][mi] {
				continue
			}
			result.Messages = append(result.Messages, msg)
			sourceTokens += c.tokens[mi]
			sourceCount++
		}
		if sourceTokens < c.total {
			truncatedSources++
		}
		if sourceCount == 0 {
			continue
		}
		result.Sources = append(result.Sources, Source{
			ConversationID: c.conv.ID,
			Title:          c.conv.Title,
			MessageCount:   sourceCount,
			Tokens:         sourceTokens,
		})
		result.TotalTokens += sourceTokens
	}

	if unbudgeted > budget {
		result.Truncated = true
		result.TruncationReason = fmt.Sprintf(
			"%d of %d sources truncated to fit %d-token budget",
			truncatedSources, len(candidates), budget,
		)
	}

	log.Trace().
		Int("source_count", len(result.Sources)).
		Int("total_tokens", result.TotalTokens).
		Int("budget", budget).
		Bool("truncated", result.Truncated).
		Msg("assembled context")

	return result
}
