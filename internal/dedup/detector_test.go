package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filipbart/farms-manager-invoices/internal/common"
	"github.com/filipbart/farms-manager-invoices/internal/model"
)

type fakeStore struct {
	exact   *model.Invoice
	similar []model.Invoice

	gotSellerNorm string
	gotBuyerNorm  string
	gotMinGross   float64
	gotMaxGross   float64
	gotFrom       time.Time
	gotTo         time.Time
	calls         int
}

func (f *fakeStore) FindExactDuplicate(_ context.Context, _ *model.Invoice) (*model.Invoice, error) {
	return f.exact, nil
}

func (f *fakeStore) FindSimilarInvoices(_ context.Context, sellerNorm, buyerNorm string, minGross, maxGross float64, from, to time.Time) ([]model.Invoice, error) {
	f.calls++
	f.gotSellerNorm = sellerNorm
	f.gotBuyerNorm = buyerNorm
	f.gotMinGross = minGross
	f.gotMaxGross = maxGross
	f.gotFrom = from
	f.gotTo = to
	return f.similar, nil
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := []Config{
		{AmountTolerance: 0, DateWindowDays: 30},
		{AmountTolerance: -0.1, DateWindowDays: 30},
		{AmountTolerance: 0.05, DateWindowDays: 0},
		{AmountTolerance: 0.05, DateWindowDays: -1},
	}
	for _, cfg := range bad {
		err := cfg.Validate()
		assert.ErrorIs(t, err, common.ErrInvalidConfig, "config %+v", cfg)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(&fakeStore{}, Config{})
	assert.Error(t, err)
}

func TestFindSimilarBand(t *testing.T) {
	store := &fakeStore{}
	det, err := New(store, DefaultConfig())
	require.NoError(t, err)

	issued := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	inv := &model.Invoice{
		SellerTaxID: "PL 123-456-78-19",
		GrossAmount: 1000,
		IssueDate:   issued,
	}

	_, err = det.FindSimilar(context.Background(), inv)
	require.NoError(t, err)

	assert.Equal(t, "1234567819", store.gotSellerNorm)
	assert.Empty(t, store.gotBuyerNorm)
	assert.InDelta(t, 950.0, store.gotMinGross, 1e-9)
	assert.InDelta(t, 1050.0, store.gotMaxGross, 1e-9)
	assert.Equal(t, issued.AddDate(0, 0, -30), store.gotFrom)
	assert.Equal(t, issued.AddDate(0, 0, 30), store.gotTo)
}

func TestFindSimilarSkipsWithoutTaxIDs(t *testing.T) {
	store := &fakeStore{}
	det, err := New(store, DefaultConfig())
	require.NoError(t, err)

	inv := &model.Invoice{GrossAmount: 500, IssueDate: time.Now()}
	similar, err := det.FindSimilar(context.Background(), inv)
	require.NoError(t, err)

	assert.Nil(t, similar)
	assert.Zero(t, store.calls, "store must not be queried without a tax id")
}

func TestFindSimilarFiltersSelf(t *testing.T) {
	store := &fakeStore{
		similar: []model.Invoice{
			{ID: "inv-1", Number: "FV/1"},
			{ID: "inv-2", Number: "FV/2"},
		},
	}
	det, err := New(store, DefaultConfig())
	require.NoError(t, err)

	inv := &model.Invoice{
		ID:          "inv-1",
		SellerTaxID: "1234567819",
		GrossAmount: 100,
		IssueDate:   time.Now(),
	}
	similar, err := det.FindSimilar(context.Background(), inv)
	require.NoError(t, err)

	require.Len(t, similar, 1)
	assert.Equal(t, "inv-2", similar[0].ID)
}

func TestFindExactPassthrough(t *testing.T) {
	existing := &model.Invoice{ID: "inv-9", Number: "FV/9"}
	det, err := New(&fakeStore{exact: existing}, DefaultConfig())
	require.NoError(t, err)

	got, err := det.FindExact(context.Background(), &model.Invoice{Number: "FV/9"})
	require.NoError(t, err)
	assert.Equal(t, existing, got)

	det, err = New(&fakeStore{}, DefaultConfig())
	require.NoError(t, err)
	got, err = det.FindExact(context.Background(), &model.Invoice{Number: "FV/9"})
	require.NoError(t, err)
	assert.Nil(t, got)
}
