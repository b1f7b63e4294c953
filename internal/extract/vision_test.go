package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/domain"
	"expensetracker/internal/ollama"
)

type fakeVisionService struct {
	hasModel bool
	response string
	err      error

	gotModel string
	gotImage []byte
}

func (f *fakeVisionService) GenerateVision(_ context.Context, model, _ string, image []byte, _ ollama.Options) (string, error) {
	f.gotModel = model
	f.gotImage = image
	return f.response, f.err
}

func (f *fakeVisionService) HasModel(context.Context, string) (bool, error) {
	return f.hasModel, nil
}

func TestVisionExtract(t *testing.T) {
	svc := &fakeVisionService{
		hasModel: true,
		response: "```json\n" + `[
  {"date": "02/01/2024", "description": "SWIGGY BANGALORE", "amount": 450.0, "type": "debit"},
  {"date": "03/01/2024", "description": "REFUND AMAZON", "amount": "1,200.00", "type": "credit"},
  {"date": "??", "description": "unreadable", "amount": 1, "type": "debit"},
  {"date": "04/01/2024", "description": "", "amount": 99, "type": "debit"}
]` + "\n```",
	}
	ex := NewVisionExtractor(svc, "llama3.2-vision")

	txns, err := ex.Extract(context.Background(), "shot.png", []byte{1, 2, 3}, domain.SourceCreditCard)
	require.NoError(t, err)
	require.Len(t, txns, 3)

	assert.Equal(t, "llama3.2-vision", svc.gotModel)
	assert.Equal(t, []byte{1, 2, 3}, svc.gotImage)

	assert.Equal(t, "SWIGGY BANGALORE", txns[0].Description)
	assert.Equal(t, domain.Debit, txns[0].Type)
	assert.InDelta(t, 450.0, txns[0].Amount, 0.001)

	assert.Equal(t, domain.Credit, txns[1].Type)
	assert.InDelta(t, 1200.0, txns[1].Amount, 0.001)
	assert.Equal(t, domain.SourceCreditCard, txns[1].Source)

	// A readable row with a blank description is kept under a placeholder.
	assert.Equal(t, "No description", txns[2].Description)
	assert.InDelta(t, 99.0, txns[2].Amount, 0.001)
}

func TestVisionExtractModelMissing(t *testing.T) {
	ex := NewVisionExtractor(&fakeVisionService{hasModel: false}, "llama3.2-vision")
	_, err := ex.Extract(context.Background(), "shot.png", nil, domain.SourceBank)
	assert.ErrorIs(t, err, ErrVisionModelMissing)
}

// An unusable model response is an empty result, not a failure: the
// screenshot may simply contain no transactions.
func TestVisionExtractNoJSON(t *testing.T) {
	svc := &fakeVisionService{hasModel: true, response: "I cannot read this image."}
	ex := NewVisionExtractor(svc, "llama3.2-vision")
	txns, err := ex.Extract(context.Background(), "shot.png", nil, domain.SourceBank)
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestVisionExtractAllElementsInvalid(t *testing.T) {
	svc := &fakeVisionService{hasModel: true, response: `[{"date": "nope", "description": "x", "amount": 1, "type": "debit"}]`}
	ex := NewVisionExtractor(svc, "llama3.2-vision")
	txns, err := ex.Extract(context.Background(), "shot.png", nil, domain.SourceBank)
	require.NoError(t, err)
	assert.Empty(t, txns)
}
