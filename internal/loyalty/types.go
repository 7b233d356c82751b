// Package loyalty owns the loyalty domain model and the balance & reward
// engine. The engine is the only component that mutates pass balances; the
// pass builder renders whatever balance the engine last persisted.
package loyalty

import (
	"time"

	"github.com/google/uuid"
)

// LoyaltyType discriminates the reward model of a card design.
type LoyaltyType string

const (
	TypeStamps     LoyaltyType = "stamps"
	TypePoints     LoyaltyType = "points"
	TypeMembership LoyaltyType = "membership"
)

// Rules is the variant part of a card design. Each loyalty type carries only
// the fields that are meaningful for it, so there are no optional fields
// that are "actually required" for a given type.
type Rules interface {
	loyaltyRules()
}

// StampRules configures a punch-card style design: the balance counts stamps
// and wraps to zero when MaxStamps is reached.
type StampRules struct {
	MaxStamps         int
	RewardDescription string
}

// PointsRules configures a points design: the balance grows without bound
// and a reward fires once when RewardThreshold is crossed.
type PointsRules struct {
	RewardThreshold   int
	RewardDescription string
}

// MembershipRules configures a membership design: no balance-driven rewards,
// just a tier label rendered on the pass.
type MembershipRules struct {
	TierLabel string
}

func (StampRules) loyaltyRules()      {}
func (PointsRules) loyaltyRules()     {}
func (MembershipRules) loyaltyRules() {}

// Design is a loyalty card program. Owned by the card-management side of the
// product; read-only here.
type Design struct {
	ID          uuid.UUID
	Name        string
	Type        LoyaltyType
	Description string

	BackgroundColor string
	ForegroundColor string
	LabelColor      string

	IconPNG []byte
	LogoPNG []byte

	Rules Rules
}

// Pass is one customer's instance of a card design. The serial number is the
// only identifier that ever appears in protocol traffic.
type Pass struct {
	ID              uuid.UUID
	SerialNumber    string
	CardID          uuid.UUID
	CustomerID      uuid.UUID
	CurrentBalance  int
	LifetimeBalance int
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TransactionType labels ledger entries.
type TransactionType string

const (
	TxStamp  TransactionType = "stamp"
	TxPoints TransactionType = "points"
)

// Transaction is an immutable ledger entry; one row is appended for every
// balance change.
type Transaction struct {
	ID          uuid.UUID
	PassID      uuid.UUID
	Amount      int
	Type        TransactionType
	Description string
	CreatedAt   time.Time
}

// BalanceResult is returned to the scanning collaborator after a balance
// mutation.
type BalanceResult struct {
	SerialNumber    string `json:"serialNumber"`
	PreviousBalance int    `json:"previousBalance"`
	NewBalance      int    `json:"newBalance"`
	AmountAdded     int    `json:"amountAdded"`
	RewardEarned    bool   `json:"rewardEarned"`
	RewardMessage   string `json:"rewardMessage,omitempty"`
}
