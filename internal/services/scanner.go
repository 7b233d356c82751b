// scanner.go - scan event processing.

package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/stampwise/passd/internal/loyalty"
	"github.com/stampwise/passd/internal/metrics"
	"github.com/stampwise/passd/internal/pass"
)

// Notifier wakes registered devices after a balance change.
type Notifier interface {
	PassUpdated(ctx context.Context, serial string) error
}

// Scanner resolves scanned barcodes and applies them through the engine.
type Scanner struct {
	engine      *loyalty.Engine
	notifier    Notifier
	pushTimeout time.Duration
	logger      *slog.Logger
}

func NewScanner(engine *loyalty.Engine, notifier Notifier, pushTimeout time.Duration, logger *slog.Logger) *Scanner {
	if pushTimeout <= 0 {
		pushTimeout = 10 * time.Second
	}
	return &Scanner{
		engine:      engine,
		notifier:    notifier,
		pushTimeout: pushTimeout,
		logger:      logger,
	}
}

// Scan applies a scan event. The scanned value is either a raw serial number
// or an encoded barcode payload; preview barcodes name no customer and are
// rejected. After a successful balance change the registered devices are
// woken in the background - push delivery never delays or fails the scan
// response.
func (s *Scanner) Scan(ctx context.Context, scanned string, delta int, description string) (loyalty.BalanceResult, error) {
	serial, err := s.resolveSerial(scanned)
	if err != nil {
		metrics.RecordScan("rejected")
		return loyalty.BalanceResult{}, err
	}

	result, err := s.engine.Scan(ctx, serial, delta, description)
	if err != nil {
		if loyalty.CodeOf(err) == loyalty.ErrCodeInternal {
			metrics.RecordScan("failure")
		} else {
			metrics.RecordScan("rejected")
		}
		return loyalty.BalanceResult{}, err
	}

	metrics.RecordScan("success")
	if result.RewardEarned {
		metrics.RecordReward()
	}

	s.notifyAsync(ctx, serial)

	return result, nil
}

// resolveSerial extracts the serial number from the scanned value.
func (s *Scanner) resolveSerial(scanned string) (string, error) {
	if scanned == "" {
		return "", loyalty.NewValidationError("scanned value is required")
	}
	if !pass.IsBarcodeMessage(scanned) {
		return scanned, nil
	}

	payload, err := pass.ParseBarcode(scanned)
	if err != nil {
		return "", loyalty.NewValidationError("unreadable barcode payload")
	}
	if !payload.Personalized() {
		return "", loyalty.NewValidationError("preview barcodes identify no customer and cannot be scanned")
	}
	return payload.SerialNumber, nil
}

// notifyAsync triggers push dispatch decoupled from the request: the scan
// response must not wait on APNs. The dispatch gets its own deadline because
// the request context ends when the response is written.
func (s *Scanner) notifyAsync(ctx context.Context, serial string) {
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.pushTimeout)
	go func() {
		defer cancel()
		if err := s.notifier.PassUpdated(pushCtx, serial); err != nil {
			s.logger.Warn("Pass update notification failed",
				slog.String("serial_number", serial),
				slog.String("error", err.Error()),
			)
		}
	}()
}
