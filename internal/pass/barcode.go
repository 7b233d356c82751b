// barcode.go - the scan payload codec.
//
// The barcode message is a compact structured string, not the raw serial
// number: staff-facing scan flows need to resolve the card and customer
// without an extra lookup. Internal identifiers otherwise never appear in
// protocol traffic; the barcode is scanned by the operator's own tooling,
// not by other wallet devices.

package pass

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// barcodeVersion prefixes every payload so the format can evolve.
const barcodeVersion = "SW1"

// BarcodePayload is the decoded form of a scanned barcode message.
type BarcodePayload struct {
	CardID       uuid.UUID
	CustomerID   uuid.UUID // uuid.Nil on preview passes
	SerialNumber string
}

// Personalized reports whether the payload belongs to an issued pass. A
// preview pass (rendered in the design editor before any customer exists)
// omits the customer and must be rejected by balance-mutating operations.
func (p BarcodePayload) Personalized() bool {
	return p.CustomerID != uuid.Nil
}

// EncodeBarcode builds the barcode message for an issued pass.
func EncodeBarcode(cardID, customerID uuid.UUID, serial string) string {
	customer := ""
	if customerID != uuid.Nil {
		customer = customerID.String()
	}
	return strings.Join([]string{barcodeVersion, cardID.String(), customer, serial}, "|")
}

// EncodePreviewBarcode builds a barcode message for an unissued preview pass.
func EncodePreviewBarcode(cardID uuid.UUID, serial string) string {
	return EncodeBarcode(cardID, uuid.Nil, serial)
}

// ParseBarcode decodes a barcode message. It returns a validation error for
// anything that is not a well-formed payload of the current version.
func ParseBarcode(message string) (BarcodePayload, error) {
	parts := strings.Split(message, "|")
	if len(parts) != 4 {
		return BarcodePayload{}, NewValidationError(fmt.Sprintf("malformed barcode payload: expected 4 segments, got %d", len(parts)))
	}
	if parts[0] != barcodeVersion {
		return BarcodePayload{}, NewValidationError(fmt.Sprintf("unsupported barcode version %q", parts[0]))
	}

	cardID, err := uuid.Parse(parts[1])
	if err != nil {
		return BarcodePayload{}, WrapValidationError(err, "barcode card identifier is not a valid UUID")
	}

	customerID := uuid.Nil
	if parts[2] != "" {
		customerID, err = uuid.Parse(parts[2])
		if err != nil {
			return BarcodePayload{}, WrapValidationError(err, "barcode customer identifier is not a valid UUID")
		}
	}

	if parts[3] == "" {
		return BarcodePayload{}, NewValidationError("barcode serial number is empty")
	}

	return BarcodePayload{
		CardID:       cardID,
		CustomerID:   customerID,
		SerialNumber: parts[3],
	}, nil
}

// IsBarcodeMessage reports whether a scan input looks like an encoded
// payload rather than a bare serial number.
func IsBarcodeMessage(input string) bool {
	return strings.HasPrefix(input, barcodeVersion+"|")
}
