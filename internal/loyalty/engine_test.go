package loyalty

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore emulates the row-locked balance mutation of the real store: a
// per-serial mutex stands in for SELECT ... FOR UPDATE.
type fakeStore struct {
	mu      sync.Mutex
	passes  map[string]Pass
	designs map[string]Design
	ledger  []Transaction
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		passes:  make(map[string]Pass),
		designs: make(map[string]Design),
	}
}

func (s *fakeStore) add(pass Pass, design Design) {
	s.passes[pass.SerialNumber] = pass
	s.designs[pass.SerialNumber] = design
}

func (s *fakeStore) MutateBalance(ctx context.Context, serial string, apply func(Pass, Design) (BalanceUpdate, error)) (Pass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pass, ok := s.passes[serial]
	if !ok {
		return Pass{}, NewNotFoundError("unknown serial number " + serial)
	}

	update, err := apply(pass, s.designs[serial])
	if err != nil {
		return Pass{}, err
	}

	pass.CurrentBalance = update.NewBalance
	pass.LifetimeBalance += update.Delta
	pass.UpdatedAt = time.Now()
	s.passes[serial] = pass
	s.ledger = append(s.ledger, Transaction{
		ID:          uuid.New(),
		PassID:      pass.ID,
		Amount:      update.Delta,
		Type:        update.Type,
		Description: update.Description,
	})

	return pass, nil
}

func stampPass(serial string, balance, maxStamps int) (Pass, Design) {
	design := Design{
		ID:   uuid.New(),
		Name: "Coffee Club",
		Type: TypeStamps,
		Rules: StampRules{
			MaxStamps:         maxStamps,
			RewardDescription: "Free coffee!",
		},
	}
	pass := Pass{
		ID:             uuid.New(),
		SerialNumber:   serial,
		CardID:         design.ID,
		CustomerID:     uuid.New(),
		CurrentBalance: balance,
		Active:         true,
	}
	return pass, design
}

func pointsPass(serial string, balance, threshold int) (Pass, Design) {
	design := Design{
		ID:   uuid.New(),
		Name: "Points Plus",
		Type: TypePoints,
		Rules: PointsRules{
			RewardThreshold:   threshold,
			RewardDescription: "100 point bonus unlocked",
		},
	}
	pass := Pass{
		ID:             uuid.New(),
		SerialNumber:   serial,
		CardID:         design.ID,
		CustomerID:     uuid.New(),
		CurrentBalance: balance,
		Active:         true,
	}
	return pass, design
}

func TestScanStampAccumulates(t *testing.T) {
	store := newFakeStore()
	store.add(stampPass("SN-1", 3, 10))
	engine := NewEngine(store)

	result, err := engine.Scan(context.Background(), "SN-1", 2, "visit")
	require.NoError(t, err)

	assert.Equal(t, 3, result.PreviousBalance)
	assert.Equal(t, 5, result.NewBalance)
	assert.Equal(t, 2, result.AmountAdded)
	assert.False(t, result.RewardEarned)
}

func TestScanStampRewardCrossing(t *testing.T) {
	store := newFakeStore()
	store.add(stampPass("SN-1", 8, 10))
	engine := NewEngine(store)

	result, err := engine.Scan(context.Background(), "SN-1", 2, "visit")
	require.NoError(t, err)

	assert.True(t, result.RewardEarned)
	assert.Equal(t, "Free coffee!", result.RewardMessage)
	assert.Equal(t, 0, result.NewBalance, "stamp balance wraps to zero on reward")

	stored := store.passes["SN-1"]
	assert.Equal(t, 0, stored.CurrentBalance)
	assert.Equal(t, 2, stored.LifetimeBalance, "lifetime balance counts the full delta")
}

func TestScanStampOverflowDiscarded(t *testing.T) {
	store := newFakeStore()
	store.add(stampPass("SN-1", 9, 10))
	engine := NewEngine(store)

	// 9 + 4 overshoots MaxStamps by 3; the overflow is discarded, not
	// carried into the next card.
	result, err := engine.Scan(context.Background(), "SN-1", 4, "visit")
	require.NoError(t, err)

	assert.True(t, result.RewardEarned)
	assert.Equal(t, 0, store.passes["SN-1"].CurrentBalance)
}

func TestScanPointsThresholdFiresOncePerCrossing(t *testing.T) {
	store := newFakeStore()
	store.add(pointsPass("SN-2", 95, 100))
	engine := NewEngine(store)

	result, err := engine.Scan(context.Background(), "SN-2", 10, "purchase")
	require.NoError(t, err)
	assert.True(t, result.RewardEarned)
	assert.Equal(t, 105, result.NewBalance, "points balance is not reset on reward")

	// already past the threshold - no second reward
	result, err = engine.Scan(context.Background(), "SN-2", 5, "purchase")
	require.NoError(t, err)
	assert.False(t, result.RewardEarned)
	assert.Equal(t, 110, result.NewBalance)
}

func TestScanPointsLandingExactlyOnThreshold(t *testing.T) {
	store := newFakeStore()
	store.add(pointsPass("SN-2", 90, 100))
	engine := NewEngine(store)

	result, err := engine.Scan(context.Background(), "SN-2", 10, "purchase")
	require.NoError(t, err)
	assert.True(t, result.RewardEarned)
	assert.Equal(t, 100, result.NewBalance)
}

func TestScanNegativeDeltaRejected(t *testing.T) {
	store := newFakeStore()
	store.add(stampPass("SN-1", 5, 10))
	engine := NewEngine(store)

	_, err := engine.Scan(context.Background(), "SN-1", -1, "oops")
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, CodeOf(err))
	assert.Equal(t, 5, store.passes["SN-1"].CurrentBalance, "balance unchanged after rejected scan")
}

func TestScanUnknownSerial(t *testing.T) {
	engine := NewEngine(newFakeStore())

	_, err := engine.Scan(context.Background(), "NO-SUCH", 1, "visit")
	require.Error(t, err)
	assert.Equal(t, ErrCodeNotFound, CodeOf(err))
}

func TestScanInactivePassRejected(t *testing.T) {
	store := newFakeStore()
	pass, design := stampPass("SN-1", 5, 10)
	pass.Active = false
	store.add(pass, design)
	engine := NewEngine(store)

	_, err := engine.Scan(context.Background(), "SN-1", 1, "visit")
	require.Error(t, err)
	assert.Equal(t, ErrCodeInactive, CodeOf(err))
}

// Two concurrent scans on the same pass must both land: starting at 5 with
// two +1 scans the final balance is 7, never 6.
func TestScanConcurrentNoLostUpdate(t *testing.T) {
	store := newFakeStore()
	store.add(stampPass("SN-1", 5, 100))
	engine := NewEngine(store)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Scan(context.Background(), "SN-1", 1, "concurrent visit")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 7, store.passes["SN-1"].CurrentBalance)
	assert.Equal(t, 2, store.passes["SN-1"].LifetimeBalance, "lifetime tracks both deltas")
}

func TestScanAppendsLedgerEntry(t *testing.T) {
	store := newFakeStore()
	store.add(stampPass("SN-1", 0, 10))
	engine := NewEngine(store)

	_, err := engine.Scan(context.Background(), "SN-1", 3, "triple stamp promo")
	require.NoError(t, err)

	require.Len(t, store.ledger, 1)
	assert.Equal(t, 3, store.ledger[0].Amount)
	assert.Equal(t, TxStamp, store.ledger[0].Type)
	assert.Equal(t, "triple stamp promo", store.ledger[0].Description)
}
