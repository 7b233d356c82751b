// api.go implements the collaborator API: issuing passes, processing scans,
// downloading archives and inspecting the signing configuration. These
// endpoints are called by the product backend, not by wallet clients.

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stampwise/passd/internal/crypto"
	"github.com/stampwise/passd/internal/loyalty"
	"github.com/stampwise/passd/internal/pass"
	"github.com/stampwise/passd/internal/services"
	"github.com/stampwise/passd/internal/wallet"
)

// PassReader is the read surface the download endpoint needs.
type PassReader interface {
	GetPassBySerial(ctx context.Context, serial string) (loyalty.Pass, error)
	GetDesign(ctx context.Context, id uuid.UUID) (loyalty.Design, error)
}

// TransactionReader lists the ledger entries of a pass.
type TransactionReader interface {
	GetPassBySerial(ctx context.Context, serial string) (loyalty.Pass, error)
	ListTransactions(ctx context.Context, passID uuid.UUID, limit uint64) ([]loyalty.Transaction, error)
}

// IssueRequest is the body of a pass issue request.
type IssueRequest struct {
	CustomerID uuid.UUID `json:"customerId"`
	CardID     uuid.UUID `json:"cardId"`
}

// HandleIssuePass godoc
//
//	@Summary		Issue a pass
//	@Description	Creates a pass for a customer on a card design and returns its
//	@Description	serial number and download URL. Issuing again for the same
//	@Description	customer and card returns the existing pass, so the request is
//	@Description	safe to resubmit.
//	@Tags			Passes
//	@Accept			json
//	@Produce		json
//	@Param			request	body		IssueRequest			true	"Customer and card"
//	@Success		201		{object}	services.IssueResult	"Pass created"
//	@Success		200		{object}	services.IssueResult	"Pass already existed"
//	@Failure		400		{object}	wallet.ErrorResponse	"Invalid request"
//	@Failure		404		{object}	wallet.ErrorResponse	"Unknown card design"
//	@Router			/api/passes [post]
func HandleIssuePass(issuer *services.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IssueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			wallet.RespondWithError(w, r, wallet.WrapMalformedRequestError(err, "failed to decode issue request JSON"))
			return
		}
		defer r.Body.Close()

		result, err := issuer.IssuePass(r.Context(), req.CustomerID, req.CardID)
		if err != nil {
			wallet.RespondWithError(w, r, err)
			return
		}

		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		wallet.RespondWithJSONPayload(w, status, result)
	}
}

// ScanRequest is the body of a scan event.
type ScanRequest struct {
	// Scanned is the raw scanner output: either a barcode payload or a
	// bare serial number.
	Scanned     string `json:"scanned"`
	Delta       int    `json:"delta"`
	Description string `json:"description,omitempty"`
}

// HandleScan godoc
//
//	@Summary		Process a scan event
//	@Description	Applies a balance increment to the scanned pass and reports the
//	@Description	resulting balance and any earned reward. Registered devices are
//	@Description	notified in the background.
//	@Tags			Scans
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ScanRequest				true	"Scan event"
//	@Success		200		{object}	loyalty.BalanceResult	"Balance updated"
//	@Failure		400		{object}	wallet.ErrorResponse	"Invalid scan"
//	@Failure		404		{object}	wallet.ErrorResponse	"Unknown pass"
//	@Failure		409		{object}	wallet.ErrorResponse	"Pass deactivated"
//	@Router			/api/scan [post]
func HandleScan(scanner *services.Scanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			wallet.RespondWithError(w, r, wallet.WrapMalformedRequestError(err, "failed to decode scan request JSON"))
			return
		}
		defer r.Body.Close()

		result, err := scanner.Scan(r.Context(), req.Scanned, req.Delta, req.Description)
		if err != nil {
			wallet.RespondWithError(w, r, err)
			return
		}

		wallet.RespondWithJSONPayload(w, http.StatusOK, result)
	}
}

// HandleDownloadPass godoc
//
//	@Summary		Download a pass archive
//	@Description	Builds and returns the signed archive for a pass. The link is
//	@Description	handed to the customer after issuance.
//	@Tags			Passes
//	@Produce		application/vnd.apple.pkpass
//	@Param			serialNumber	path		string	true	"Pass serial number"
//	@Success		200				{file}		binary
//	@Failure		404				{object}	wallet.ErrorResponse	"Unknown pass"
//	@Failure		503				{object}	wallet.ErrorResponse	"Signing not configured"
//	@Router			/api/passes/{serialNumber}/download [get]
func HandleDownloadPass(reader PassReader, builder wallet.PassBuilder, tokens wallet.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		serial := chi.URLParam(r, "serialNumber")

		customerPass, err := reader.GetPassBySerial(ctx, serial)
		if err != nil {
			wallet.RespondWithError(w, r, err)
			return
		}

		design, err := reader.GetDesign(ctx, customerPass.CardID)
		if err != nil {
			wallet.RespondWithError(w, r, err)
			return
		}

		token, err := tokens.GetOrCreate(ctx, serial)
		if err != nil {
			wallet.RespondWithError(w, r, err)
			return
		}

		archive, err := builder.Build(ctx, pass.BuildRequest{
			Design:              design,
			SerialNumber:        serial,
			CustomerID:          customerPass.CustomerID,
			Balance:             customerPass.CurrentBalance,
			AuthenticationToken: token,
		})
		if err != nil {
			wallet.RespondWithError(w, r, err)
			return
		}

		wallet.ServeArchive(w, r, archive, customerPass.UpdatedAt)
	}
}

// TransactionView is one ledger entry as returned to collaborators.
type TransactionView struct {
	ID          uuid.UUID `json:"id"`
	Amount      int       `json:"amount"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TransactionsResponse wraps the ledger of a pass.
type TransactionsResponse struct {
	SerialNumber string            `json:"serialNumber"`
	Transactions []TransactionView `json:"transactions"`
}

const defaultTransactionLimit = 50

// HandleListTransactions godoc
//
//	@Summary		List pass transactions
//	@Description	Returns the ledger entries of a pass, newest first. The limit
//	@Description	parameter caps the page size (default 50).
//	@Tags			Passes
//	@Produce		json
//	@Param			serialNumber	path		string	true	"Pass serial number"
//	@Param			limit			query		int		false	"Maximum entries to return"
//	@Success		200				{object}	TransactionsResponse	"Ledger entries"
//	@Failure		404				{object}	wallet.ErrorResponse	"Unknown pass"
//	@Router			/api/passes/{serialNumber}/transactions [get]
func HandleListTransactions(reader TransactionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		serial := chi.URLParam(r, "serialNumber")

		limit := uint64(defaultTransactionLimit)
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || parsed == 0 {
				wallet.RespondWithError(w, r, wallet.NewMalformedRequestError("limit must be a positive integer"))
				return
			}
			limit = parsed
		}

		customerPass, err := reader.GetPassBySerial(ctx, serial)
		if err != nil {
			wallet.RespondWithError(w, r, err)
			return
		}

		transactions, err := reader.ListTransactions(ctx, customerPass.ID, limit)
		if err != nil {
			wallet.RespondWithError(w, r, err)
			return
		}

		response := TransactionsResponse{
			SerialNumber: serial,
			Transactions: make([]TransactionView, 0, len(transactions)),
		}
		for _, tx := range transactions {
			response.Transactions = append(response.Transactions, TransactionView{
				ID:          tx.ID,
				Amount:      tx.Amount,
				Type:        string(tx.Type),
				Description: tx.Description,
				CreatedAt:   tx.CreatedAt,
			})
		}

		wallet.RespondWithJSONPayload(w, http.StatusOK, response)
	}
}

// HandleCertificateDiagnostics godoc
//
//	@Summary		Signing configuration diagnostics
//	@Description	Reports whether the configured signing material is usable and
//	@Description	the per-check results. Intended for operators; certificates and
//	@Description	keys themselves are never returned.
//	@Tags			Certificates
//	@Produce		json
//	@Success		200	{object}	crypto.Diagnostics	"Diagnostics report"
//	@Router			/api/certificates/diagnostics [get]
func HandleCertificateDiagnostics(provider *crypto.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet.RespondWithJSONPayload(w, http.StatusOK, provider.Diagnostics())
	}
}
