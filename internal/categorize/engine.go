package categorize

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"expensetracker/internal/domain"
	"expensetracker/internal/logger"
	"expensetracker/internal/ollama"
)

// RuleStore is the slice of the store the engine reads from.
type RuleStore interface {
	RuleWriter
	ListRules(ctx context.Context) ([]domain.CategoryRule, error)
	CategorizedExamples(ctx context.Context, limit int) ([]domain.Transaction, error)
}

// Engine is the layered categorizer. It holds no per-call state; the
// same engine serves every request.
type Engine struct {
	gen   ollama.Generator
	model string
	store RuleStore
}

func NewEngine(gen ollama.Generator, model string, store RuleStore) *Engine {
	return &Engine{gen: gen, model: model, store: store}
}

// Categorize assigns a category to every transaction it can. The rule
// layer runs first and short-circuits the model for its matches; the rest
// go to the model in batches. The returned map holds transaction ID ->
// category for everything that was decided.
//
// A model failure mid-way is not fatal to the rule results: whatever was
// decided before the failure is returned alongside the error.
func (e *Engine) Categorize(ctx context.Context, txns []domain.Transaction, categories []string) (map[int64]string, error) {
	log := logger.FromContext(ctx)

	rules, err := e.store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	results := ApplyRules(rules, txns)
	if results == nil {
		results = make(map[int64]string)
	}

	var remaining []domain.Transaction
	for _, t := range txns {
		if _, done := results[t.ID]; !done {
			remaining = append(remaining, t)
		}
	}
	log.Debug().
		Int("total", len(txns)).
		Int("by_rule", len(results)).
		Int("for_model", len(remaining)).
		Msg("rule layer applied")
	if len(remaining) == 0 {
		return results, nil
	}

	examples, err := e.store.CategorizedExamples(ctx, maxPromptExamples)
	if err != nil {
		return results, fmt.Errorf("load examples: %w", err)
	}

	vocab := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		vocab[c] = struct{}{}
	}

	for start := 0; start < len(remaining); start += batchSize {
		end := start + batchSize
		if end > len(remaining) {
			end = len(remaining)
		}
		batch := remaining[start:end]

		prompt := buildPrompt(batch, categories, rules, examples)
		resp, err := e.gen.Generate(ctx, e.model, prompt, ollama.Options{Temperature: 0.1, MaxTokens: 2048})
		if err != nil {
			return results, fmt.Errorf("categorize batch at %d: %w", start, err)
		}

		mapping, ok := parseMapping(resp)
		if !ok {
			log.Warn().Int("batch_start", start).Str("response", truncate(resp, 200)).
				Msg("no valid mapping for batch")
			continue
		}
		for idxStr, category := range mapping {
			idx, err := strconv.Atoi(idxStr)
			if err != nil || idx < 0 || idx >= len(batch) {
				continue
			}
			if _, known := vocab[category]; !known {
				category = domain.CategoryOther
			}
			results[batch[idx].ID] = category
		}
	}

	return results, nil
}

// CategorizeOne classifies a single transaction. Returns empty when the
// model produced nothing usable for it.
func (e *Engine) CategorizeOne(ctx context.Context, txn domain.Transaction, categories []string) (string, error) {
	results, err := e.Categorize(ctx, []domain.Transaction{txn}, categories)
	if err != nil {
		return "", err
	}
	return results[txn.ID], nil
}

func parseMapping(resp string) (map[string]string, bool) {
	raw, ok := ollama.ExtractJSONObject(resp)
	if !ok {
		return nil, false
	}
	var mapping map[string]string
	if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
		return nil, false
	}
	return mapping, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
