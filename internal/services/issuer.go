// Package services holds the collaborator-facing orchestration: issuing
// passes and processing scans. Handlers stay thin; the decisions live here.
package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/stampwise/passd/internal/loyalty"
	"github.com/stampwise/passd/internal/store"
)

// IssuerStore is the persistence surface issuance needs.
type IssuerStore interface {
	GetDesign(ctx context.Context, id uuid.UUID) (loyalty.Design, error)
	GetPassByCardAndCustomer(ctx context.Context, cardID, customerID uuid.UUID) (loyalty.Pass, error)
	CreatePass(ctx context.Context, pass loyalty.Pass) (loyalty.Pass, error)
}

// TokenMinter mints the per-pass authentication token at issue time.
type TokenMinter interface {
	GetOrCreate(ctx context.Context, serial string) (string, error)
}

// IssueResult is returned to the collaborator after issuing a pass.
type IssueResult struct {
	SerialNumber string `json:"serialNumber"`
	DownloadURL  string `json:"downloadUrl"`

	// Created is false when the customer already held a pass on the card
	// and that pass was returned instead.
	Created bool `json:"created"`
}

// Issuer creates customer passes.
type Issuer struct {
	store         IssuerStore
	tokens        TokenMinter
	publicBaseURL string
}

func NewIssuer(issuerStore IssuerStore, tokens TokenMinter, publicBaseURL string) *Issuer {
	return &Issuer{
		store:         issuerStore,
		tokens:        tokens,
		publicBaseURL: publicBaseURL,
	}
}

// IssuePass creates a pass for a customer on a card design, or returns the
// pass the customer already holds. Issuance is idempotent per
// (customer, card): a collaborator can safely resubmit after a timeout.
func (i *Issuer) IssuePass(ctx context.Context, customerID, cardID uuid.UUID) (IssueResult, error) {
	if customerID == uuid.Nil {
		return IssueResult{}, loyalty.NewValidationError("customerId is required")
	}

	if _, err := i.store.GetDesign(ctx, cardID); err != nil {
		return IssueResult{}, err
	}

	existing, err := i.store.GetPassByCardAndCustomer(ctx, cardID, customerID)
	if err == nil {
		return i.result(ctx, existing.SerialNumber, false)
	}
	if !store.IsNotFound(err) {
		return IssueResult{}, err
	}

	created, err := i.store.CreatePass(ctx, loyalty.Pass{
		ID:           uuid.New(),
		SerialNumber: uuid.NewString(),
		CardID:       cardID,
		CustomerID:   customerID,
		Active:       true,
	})
	if err != nil {
		// a racing issue request may have won the unique constraint;
		// return its pass to keep the operation idempotent
		racedPass, getErr := i.store.GetPassByCardAndCustomer(ctx, cardID, customerID)
		if getErr != nil {
			return IssueResult{}, err
		}
		return i.result(ctx, racedPass.SerialNumber, false)
	}

	return i.result(ctx, created.SerialNumber, true)
}

func (i *Issuer) result(ctx context.Context, serial string, created bool) (IssueResult, error) {
	// mint the token now so the first archive download does not race
	if _, err := i.tokens.GetOrCreate(ctx, serial); err != nil {
		return IssueResult{}, err
	}

	return IssueResult{
		SerialNumber: serial,
		DownloadURL:  fmt.Sprintf("%s/api/passes/%s/download", i.publicBaseURL, serial),
		Created:      created,
	}, nil
}
