// handlers.go implements the wallet web service protocol mounted under /v1.
//
// The wallet client drives these endpoints itself once a pass is installed:
// it registers for update pushes, polls for changed serials after a wake
// push, fetches the refreshed archive and reports client-side errors. Status
// codes are the protocol contract; error bodies are ignored by the client.

package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stampwise/passd/internal/logger"
	"github.com/stampwise/passd/internal/loyalty"
	"github.com/stampwise/passd/internal/pass"
)

// ProtocolStore is the persistence surface the protocol handlers need.
type ProtocolStore interface {
	UpsertRegistration(ctx context.Context, deviceLibraryID, passTypeID, serial, pushToken string) (created bool, err error)
	DeleteRegistration(ctx context.Context, deviceLibraryID, serial string) error
	ListSerialsForDevice(ctx context.Context, deviceLibraryID, passTypeID string, updatedSince time.Time) ([]string, time.Time, error)
	GetPassBySerial(ctx context.Context, serial string) (loyalty.Pass, error)
	GetDesign(ctx context.Context, id uuid.UUID) (loyalty.Design, error)
}

// PassBuilder produces signed archives for the fetch endpoint.
type PassBuilder interface {
	Build(ctx context.Context, req pass.BuildRequest) (*pass.Archive, error)
}

// Authenticator validates the per-pass tokens presented by wallet clients.
type Authenticator interface {
	GetOrCreate(ctx context.Context, serial string) (string, error)
	Validate(ctx context.Context, serial, presented string) (bool, error)
}

// Handlers holds the wallet protocol endpoints.
type Handlers struct {
	store      ProtocolStore
	builder    PassBuilder
	tokens     Authenticator
	passTypeID string
}

func NewHandlers(store ProtocolStore, builder PassBuilder, tokens Authenticator, passTypeID string) *Handlers {
	return &Handlers{
		store:      store,
		builder:    builder,
		tokens:     tokens,
		passTypeID: passTypeID,
	}
}

// registrationRequest is the body of a device registration.
type registrationRequest struct {
	PushToken string `json:"pushToken"`
}

// serialsResponse is the body of a registration listing.
type serialsResponse struct {
	SerialNumbers []string `json:"serialNumbers"`
	LastUpdated   string   `json:"lastUpdated"`
}

// logRequest is the body of a client error report.
type logRequest struct {
	Logs []string `json:"logs"`
}

// HandleRegisterDevice handles
// POST /v1/devices/{deviceLibraryId}/registrations/{passTypeId}/{serialNumber}.
//
// Responds 201 when the registration is new, 200 when the device was already
// registered (the push token is refreshed either way), 401 on bad auth and
// 400 on a missing push token.
func (h *Handlers) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deviceID := chi.URLParam(r, "deviceLibraryId")
	serial := chi.URLParam(r, "serialNumber")

	if !h.authenticate(w, r, serial) {
		return
	}

	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithProtocolError(w, r, WrapMalformedRequestError(err, "failed to decode registration JSON"))
		return
	}
	defer r.Body.Close()

	if req.PushToken == "" {
		RespondWithProtocolError(w, r, NewMalformedRequestError("pushToken is required"))
		return
	}

	created, err := h.store.UpsertRegistration(ctx, deviceID, h.passTypeID, serial, req.PushToken)
	if err != nil {
		RespondWithProtocolError(w, r, err)
		return
	}

	if created {
		RespondWithStatusCodeOnly(w, http.StatusCreated)
		return
	}
	RespondWithStatusCodeOnly(w, http.StatusOK)
}

// HandleUnregisterDevice handles
// DELETE /v1/devices/{deviceLibraryId}/registrations/{passTypeId}/{serialNumber}.
//
// Unregistering is idempotent: deleting a registration that does not exist
// still responds 200.
func (h *Handlers) HandleUnregisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deviceID := chi.URLParam(r, "deviceLibraryId")
	serial := chi.URLParam(r, "serialNumber")

	if !h.authenticate(w, r, serial) {
		return
	}

	if err := h.store.DeleteRegistration(ctx, deviceID, serial); err != nil {
		RespondWithProtocolError(w, r, err)
		return
	}
	RespondWithStatusCodeOnly(w, http.StatusOK)
}

// HandleListRegistrations handles
// GET /v1/devices/{deviceLibraryId}/registrations/{passTypeId}.
//
// The optional passesUpdatedSince parameter narrows the listing to passes
// changed after that stamp; its value is whatever lastUpdated the service
// returned previously. Responds 204 when nothing matches. This endpoint is
// unauthenticated: it only reveals serial numbers the device already holds.
func (h *Handlers) HandleListRegistrations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deviceID := chi.URLParam(r, "deviceLibraryId")
	passTypeID := chi.URLParam(r, "passTypeId")

	if passTypeID != h.passTypeID {
		RespondWithProtocolError(w, r, NewNotFoundError(fmt.Sprintf("unknown pass type %s", passTypeID)))
		return
	}

	var updatedSince time.Time
	if raw := r.URL.Query().Get("passesUpdatedSince"); raw != "" {
		parsed, err := parseUpdateTag(raw)
		if err != nil {
			RespondWithProtocolError(w, r, WrapMalformedRequestError(err, "invalid passesUpdatedSince"))
			return
		}
		updatedSince = parsed
	}

	serials, lastUpdated, err := h.store.ListSerialsForDevice(ctx, deviceID, passTypeID, updatedSince)
	if err != nil {
		RespondWithProtocolError(w, r, err)
		return
	}

	if len(serials) == 0 {
		RespondWithStatusCodeOnly(w, http.StatusNoContent)
		return
	}

	RespondWithJSONPayload(w, http.StatusOK, serialsResponse{
		SerialNumbers: serials,
		LastUpdated:   formatUpdateTag(lastUpdated),
	})
}

// HandleGetPass handles GET /v1/passes/{passTypeId}/{serialNumber}.
//
// When the If-Modified-Since precondition holds the handler answers 304
// without building or signing anything. Otherwise it builds a fresh signed
// archive reflecting the current balance.
func (h *Handlers) HandleGetPass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	passTypeID := chi.URLParam(r, "passTypeId")
	serial := chi.URLParam(r, "serialNumber")

	if !h.authenticate(w, r, serial) {
		return
	}

	if passTypeID != h.passTypeID {
		RespondWithProtocolError(w, r, NewNotFoundError(fmt.Sprintf("unknown pass type %s", passTypeID)))
		return
	}

	customerPass, err := h.store.GetPassBySerial(ctx, serial)
	if err != nil {
		RespondWithProtocolError(w, r, err)
		return
	}

	// HTTP dates carry second precision, so the stored stamp is truncated
	// before the comparison.
	if since := r.Header.Get("If-Modified-Since"); since != "" {
		if sinceTime, err := http.ParseTime(since); err == nil {
			if !customerPass.UpdatedAt.Truncate(time.Second).After(sinceTime) {
				RespondWithStatusCodeOnly(w, http.StatusNotModified)
				return
			}
		}
	}

	design, err := h.store.GetDesign(ctx, customerPass.CardID)
	if err != nil {
		RespondWithProtocolError(w, r, err)
		return
	}

	token, err := h.tokens.GetOrCreate(ctx, serial)
	if err != nil {
		RespondWithProtocolError(w, r, err)
		return
	}

	archive, err := h.builder.Build(ctx, pass.BuildRequest{
		Design:              design,
		SerialNumber:        serial,
		CustomerID:          customerPass.CustomerID,
		Balance:             customerPass.CurrentBalance,
		AuthenticationToken: token,
	})
	if err != nil {
		RespondWithProtocolError(w, r, err)
		return
	}

	ServeArchive(w, r, archive, customerPass.UpdatedAt)
}

// HandleLog handles POST /v1/log: wallet clients report client-side errors
// here. The messages are logged server-side and the endpoint always answers
// 200 so a logging failure never disturbs the client.
func (h *Handlers) HandleLog(w http.ResponseWriter, r *http.Request) {
	reqLogger := logger.ContextRequestLogger(r.Context())

	var req logRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		reqLogger.Warn("Undecodable wallet client log report", slog.String("error", err.Error()))
		RespondWithStatusCodeOnly(w, http.StatusOK)
		return
	}
	defer r.Body.Close()

	for _, message := range req.Logs {
		reqLogger.Warn("Wallet client log", slog.String("message", message))
	}
	RespondWithStatusCodeOnly(w, http.StatusOK)
}

// ServeArchive writes a signed archive with the wallet media type. Shared
// with the collaborator download endpoint.
func ServeArchive(w http.ResponseWriter, r *http.Request, archive *pass.Archive, lastModified time.Time) {
	w.Header().Set("Content-Type", pass.MediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", archive.Filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", archive.Length))
	if !lastModified.IsZero() {
		w.Header().Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(archive.Data); err != nil {
		logger.ContextRequestLogger(r.Context()).Error("Failed to write pass archive",
			slog.String("error", err.Error()),
		)
	}
}

// authenticate enforces the ApplePass authorization scheme for one serial.
// It writes the 401 itself and reports whether the handler may proceed.
func (h *Handlers) authenticate(w http.ResponseWriter, r *http.Request, serial string) bool {
	token, ok := applePassToken(r)
	if !ok {
		RespondWithProtocolError(w, r, NewUnauthorizedError("missing ApplePass authorization header"))
		return false
	}

	valid, err := h.tokens.Validate(r.Context(), serial, token)
	if err != nil {
		RespondWithProtocolError(w, r, err)
		return false
	}
	if !valid {
		RespondWithProtocolError(w, r, NewUnauthorizedError(fmt.Sprintf("invalid token for pass %s", serial)))
		return false
	}
	return true
}

// applePassToken extracts the token from an "Authorization: ApplePass <token>"
// header.
func applePassToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "ApplePass") || token == "" {
		return "", false
	}
	return token, true
}

// formatUpdateTag renders the lastUpdated tag handed back to wallet clients.
// The tag is opaque to the client; it round-trips through passesUpdatedSince.
func formatUpdateTag(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseUpdateTag parses a tag previously produced by formatUpdateTag.
func parseUpdateTag(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}
