// Package pass builds, signs and packages wallet pass archives.
//
// The pipeline is content document -> manifest -> detached signature ->
// deflate ZIP archive. Every stage is deterministic: identical inputs
// produce byte-for-byte identical content and manifest, which is required
// because the signature is only valid for that exact manifest.
package pass

// content.go - the pass content document (pass.json).

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/stampwise/passd/internal/loyalty"
)

// Barcode is the machine-readable payload rendered on the pass. Exactly one
// barcode is emitted per pass.
type Barcode struct {
	Format          string `json:"format"`
	Message         string `json:"message"`
	MessageEncoding string `json:"messageEncoding"`
	AltText         string `json:"altText,omitempty"`
}

// Field is a single display field on the pass.
type Field struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	Value any    `json:"value"`
}

// FieldSet groups the display fields by their position on the card layout.
type FieldSet struct {
	HeaderFields    []Field `json:"headerFields,omitempty"`
	PrimaryFields   []Field `json:"primaryFields,omitempty"`
	SecondaryFields []Field `json:"secondaryFields,omitempty"`
	AuxiliaryFields []Field `json:"auxiliaryFields,omitempty"`
	BackFields      []Field `json:"backFields,omitempty"`
}

// Content is the structured pass description serialized as pass.json.
type Content struct {
	FormatVersion      int    `json:"formatVersion"`
	PassTypeIdentifier string `json:"passTypeIdentifier"`
	SerialNumber       string `json:"serialNumber"`
	TeamIdentifier     string `json:"teamIdentifier"`
	OrganizationName   string `json:"organizationName"`
	Description        string `json:"description"`

	BackgroundColor string `json:"backgroundColor,omitempty"`
	ForegroundColor string `json:"foregroundColor,omitempty"`
	LabelColor      string `json:"labelColor,omitempty"`
	LogoText        string `json:"logoText,omitempty"`

	WebServiceURL       string `json:"webServiceURL,omitempty"`
	AuthenticationToken string `json:"authenticationToken,omitempty"`

	Barcodes []Barcode `json:"barcodes"`

	StoreCard *FieldSet `json:"storeCard,omitempty"`
}

// ContentInput carries everything needed to render one customer's pass.
type ContentInput struct {
	Design loyalty.Design

	SerialNumber string
	Balance      int

	// BarcodeMessage is the encoded scan payload (see barcode.go).
	BarcodeMessage string

	// AuthenticationToken is the per-pass secret the wallet client presents
	// on web service calls.
	AuthenticationToken string

	PassTypeIdentifier string
	TeamIdentifier     string
	OrganizationName   string
	WebServiceURL      string
}

// BuildContent renders the content document for a pass. The balance field
// shows "current/max" on stamp cards, the raw number on points cards, and
// the tier label on membership cards.
func BuildContent(in ContentInput) (*Content, error) {
	if in.SerialNumber == "" {
		return nil, NewValidationError("serial number is required")
	}
	if in.BarcodeMessage == "" {
		return nil, NewValidationError("barcode message is required")
	}
	if in.PassTypeIdentifier == "" || in.TeamIdentifier == "" {
		return nil, NewValidationError("pass type and team identifiers are required")
	}

	balanceField, err := balanceField(in.Design, in.Balance)
	if err != nil {
		return nil, err
	}

	description := in.Design.Description
	if description == "" {
		description = in.Design.Name
	}

	content := &Content{
		FormatVersion:      1,
		PassTypeIdentifier: in.PassTypeIdentifier,
		SerialNumber:       in.SerialNumber,
		TeamIdentifier:     in.TeamIdentifier,
		OrganizationName:   in.OrganizationName,
		Description:        description,

		BackgroundColor: in.Design.BackgroundColor,
		ForegroundColor: in.Design.ForegroundColor,
		LabelColor:      in.Design.LabelColor,
		LogoText:        in.Design.Name,

		WebServiceURL:       in.WebServiceURL,
		AuthenticationToken: in.AuthenticationToken,

		Barcodes: []Barcode{
			{
				Format:          "PKBarcodeFormatQR",
				Message:         in.BarcodeMessage,
				MessageEncoding: "iso-8859-1",
			},
		},

		StoreCard: &FieldSet{
			PrimaryFields: []Field{balanceField},
			BackFields: []Field{
				{Key: "program", Label: "Program", Value: in.Design.Name},
			},
		},
	}

	return content, nil
}

// balanceField renders the loyalty-type-specific primary field.
func balanceField(design loyalty.Design, balance int) (Field, error) {
	switch rules := design.Rules.(type) {
	case loyalty.StampRules:
		return Field{
			Key:   "balance",
			Label: "Stamps",
			Value: fmt.Sprintf("%d/%d", balance, rules.MaxStamps),
		}, nil

	case loyalty.PointsRules:
		return Field{
			Key:   "balance",
			Label: "Points",
			Value: balance,
		}, nil

	case loyalty.MembershipRules:
		label := rules.TierLabel
		if label == "" {
			label = "Member"
		}
		return Field{
			Key:   "membership",
			Label: "Membership",
			Value: label,
		}, nil

	default:
		return Field{}, NewValidationError(fmt.Sprintf("design %s has unsupported loyalty rules %T", design.ID, design.Rules))
	}
}

// Marshal serializes the content document to canonical JSON (RFC 8785) so
// identical inputs always produce identical bytes.
func (c *Content) Marshal() ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, WrapInternalError(err, "failed to marshal pass content")
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, WrapInternalError(err, "failed to canonicalize pass content")
	}

	return canonical, nil
}
