package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stampwise/passd/internal/loyalty"
	"github.com/stampwise/passd/internal/store"
)

type passKey struct {
	card     uuid.UUID
	customer uuid.UUID
}

type fakeIssuerStore struct {
	mu      sync.Mutex
	designs map[uuid.UUID]loyalty.Design
	passes  map[passKey]loyalty.Pass
}

func newFakeIssuerStore() *fakeIssuerStore {
	return &fakeIssuerStore{
		designs: map[uuid.UUID]loyalty.Design{},
		passes:  map[passKey]loyalty.Pass{},
	}
}

func (f *fakeIssuerStore) GetDesign(_ context.Context, id uuid.UUID) (loyalty.Design, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.designs[id]
	if !ok {
		return loyalty.Design{}, store.NewNotFoundError(fmt.Sprintf("card design %s not found", id))
	}
	return d, nil
}

func (f *fakeIssuerStore) GetPassByCardAndCustomer(_ context.Context, cardID, customerID uuid.UUID) (loyalty.Pass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.passes[passKey{card: cardID, customer: customerID}]
	if !ok {
		return loyalty.Pass{}, store.NewNotFoundError("no pass")
	}
	return p, nil
}

func (f *fakeIssuerStore) CreatePass(_ context.Context, p loyalty.Pass) (loyalty.Pass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := passKey{card: p.CardID, customer: p.CustomerID}
	if _, exists := f.passes[key]; exists {
		return loyalty.Pass{}, store.NewConflictError("pass already exists")
	}
	f.passes[key] = p
	return p, nil
}

type fakeMinter struct {
	mu     sync.Mutex
	minted []string
}

func (f *fakeMinter) GetOrCreate(_ context.Context, serial string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minted = append(f.minted, serial)
	return "token-" + serial, nil
}

func TestIssuePass(t *testing.T) {
	issuerStore := newFakeIssuerStore()
	minter := &fakeMinter{}
	design := loyalty.Design{ID: uuid.New(), Name: "Coffee Club", Type: loyalty.TypeStamps, Rules: loyalty.StampRules{MaxStamps: 10}}
	issuerStore.designs[design.ID] = design

	issuer := NewIssuer(issuerStore, minter, "https://passes.example.com")
	customerID := uuid.New()

	result, err := issuer.IssuePass(context.Background(), customerID, design.ID)
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.NotEmpty(t, result.SerialNumber)
	assert.Equal(t, fmt.Sprintf("https://passes.example.com/api/passes/%s/download", result.SerialNumber), result.DownloadURL)
	assert.Equal(t, []string{result.SerialNumber}, minter.minted, "token minted at issue time")

	stored := issuerStore.passes[passKey{card: design.ID, customer: customerID}]
	assert.True(t, stored.Active)
	assert.Zero(t, stored.CurrentBalance)
}

func TestIssuePassIdempotent(t *testing.T) {
	issuerStore := newFakeIssuerStore()
	minter := &fakeMinter{}
	design := loyalty.Design{ID: uuid.New(), Name: "Coffee Club", Type: loyalty.TypeStamps, Rules: loyalty.StampRules{MaxStamps: 10}}
	issuerStore.designs[design.ID] = design

	issuer := NewIssuer(issuerStore, minter, "https://passes.example.com")
	customerID := uuid.New()

	first, err := issuer.IssuePass(context.Background(), customerID, design.ID)
	require.NoError(t, err)

	second, err := issuer.IssuePass(context.Background(), customerID, design.ID)
	require.NoError(t, err)

	assert.Equal(t, first.SerialNumber, second.SerialNumber, "resubmission returns the same pass")
	assert.False(t, second.Created)
	assert.Len(t, issuerStore.passes, 1)
}

func TestIssuePassValidation(t *testing.T) {
	issuerStore := newFakeIssuerStore()
	design := loyalty.Design{ID: uuid.New(), Name: "Coffee Club", Type: loyalty.TypeStamps, Rules: loyalty.StampRules{MaxStamps: 10}}
	issuerStore.designs[design.ID] = design

	issuer := NewIssuer(issuerStore, &fakeMinter{}, "https://passes.example.com")

	t.Run("unknown card", func(t *testing.T) {
		_, err := issuer.IssuePass(context.Background(), uuid.New(), uuid.New())
		require.Error(t, err)
		assert.True(t, store.IsNotFound(err))
	})

	t.Run("missing customer", func(t *testing.T) {
		_, err := issuer.IssuePass(context.Background(), uuid.Nil, design.ID)
		require.Error(t, err)
		assert.Equal(t, loyalty.ErrCodeValidation, loyalty.CodeOf(err))
	})
}
