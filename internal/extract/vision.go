package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"expensetracker/internal/domain"
	"expensetracker/internal/logger"
	"expensetracker/internal/normalize"
	"expensetracker/internal/ollama"
)

// ErrVisionModelMissing is a configuration error: the vision model named
// in config is not pulled on the generation service, so screenshot
// ingestion cannot work until the operator pulls it.
var ErrVisionModelMissing = errors.New("vision model not available on generation service")

// VisionService is what the image extractor needs from the generation
// backend.
type VisionService interface {
	GenerateVision(ctx context.Context, model, prompt string, image []byte, opts ollama.Options) (string, error)
	HasModel(ctx context.Context, model string) (bool, error)
}

// VisionExtractor reads statement screenshots with a local vision model.
type VisionExtractor struct {
	svc   VisionService
	model string
}

func NewVisionExtractor(svc VisionService, model string) *VisionExtractor {
	return &VisionExtractor{svc: svc, model: model}
}

const visionPrompt = `You are reading a screenshot of a bank or credit card statement.
Extract every transaction you can see and return ONLY a JSON array, no other text.
Each element must be an object with exactly these keys:
  "date": the transaction date as seen in the image (e.g. "02/01/2024")
  "description": the merchant or narration text
  "amount": the amount as a number, without currency symbols
  "type": "debit" if money went out, "credit" if money came in
If you cannot read any transactions, return [].`

// Extract runs the vision model over one image and validates each element
// it returns. Unreadable elements are dropped, not fatal: a partially
// readable screenshot still yields its readable rows.
func (e *VisionExtractor) Extract(ctx context.Context, filename string, image []byte, source domain.Source) ([]domain.Transaction, error) {
	log := logger.FromContext(ctx)

	ok, err := e.svc.HasModel(ctx, e.model)
	if err != nil {
		return nil, fmt.Errorf("check vision model: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVisionModelMissing, e.model)
	}

	resp, err := e.svc.GenerateVision(ctx, e.model, visionPrompt, image, ollama.Options{Temperature: 0})
	if err != nil {
		return nil, fmt.Errorf("vision extraction: %w", err)
	}

	// Extraction is best-effort: an unusable response means the model saw
	// nothing it could read, which is an empty result, not a failure.
	raw, ok := ollama.ExtractJSONArray(resp)
	if !ok {
		log.Warn().Str("file", filename).Msg("vision model returned no JSON array")
		return nil, nil
	}

	var elems []visionElement
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		log.Warn().Str("file", filename).Err(err).Msg("vision output is not valid JSON")
		return nil, nil
	}

	var txns []domain.Transaction
	for i, el := range elems {
		txn, ok := el.toTransaction(source)
		if !ok {
			log.Debug().Str("file", filename).Int("index", i).Msg("dropping unreadable vision element")
			continue
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

type visionElement struct {
	Date        string     `json:"date"`
	Description string     `json:"description"`
	Amount      flexAmount `json:"amount"`
	Type        string     `json:"type"`
}

func (el visionElement) toTransaction(source domain.Source) (domain.Transaction, bool) {
	date, ok := normalize.ParseDate(el.Date)
	if !ok {
		return domain.Transaction{}, false
	}
	desc := strings.TrimSpace(el.Description)
	if desc == "" {
		desc = "No description"
	}
	amount, ok := normalize.CleanAmount(string(el.Amount))
	if !ok {
		return domain.Transaction{}, false
	}
	return domain.Transaction{
		Date:        date,
		Description: desc,
		Amount:      amount,
		Type:        domain.ParseTxnType(el.Type),
		Source:      source,
		Month:       int(date.Month()),
		Year:        date.Year(),
	}, true
}

// flexAmount accepts both JSON numbers and quoted strings; vision models
// emit either.
type flexAmount string

func (a *flexAmount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = flexAmount(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = flexAmount(strconv.FormatFloat(n, 'f', -1, 64))
	return nil
}
