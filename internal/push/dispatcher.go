// Package push notifies wallet devices that a pass changed.
//
// The notification is an empty background push: it carries no content and
// only prompts the device to poll the web service for updated serials. When
// APNs is not configured the dispatcher is a documented no-op, so the rest
// of the service works without push credentials (devices then only refresh
// manually).
package push

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sideshow/apns2"
	"golang.org/x/sync/errgroup"

	"github.com/stampwise/passd/internal/crypto"
	"github.com/stampwise/passd/internal/metrics"
	"github.com/stampwise/passd/internal/store"
)

// Client is the APNs transport. *apns2.Client satisfies it.
type Client interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// Store is the persistence surface the dispatcher needs.
type Store interface {
	ListRegistrationsBySerial(ctx context.Context, serial string) ([]store.Registration, error)
	DeleteRegistrationsByToken(ctx context.Context, pushToken string) error
	AppendPushLog(ctx context.Context, entry store.PushLogEntry) error
}

// Config tunes the dispatcher.
type Config struct {
	// Topic is the pass type identifier; APNs routes wallet pushes by it.
	Topic string

	// Concurrency bounds the fan-out across a pass's registered devices.
	Concurrency int
}

// Dispatcher fans update notifications out to every device registered for a
// pass.
type Dispatcher struct {
	client Client
	store  Store
	config Config
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. A nil client puts the dispatcher in
// no-op mode.
func NewDispatcher(client Client, pushStore Store, config Config, logger *slog.Logger) *Dispatcher {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	return &Dispatcher{
		client: client,
		store:  pushStore,
		config: config,
		logger: logger,
	}
}

// NewClient builds an APNs client from the pass signing material. The pass
// type certificate doubles as the APNs client certificate, so no separate
// push credential is needed. Returns a production or sandbox client per
// environment.
func NewClient(material *crypto.Material, environment string) *apns2.Client {
	client := apns2.NewClient(material.TLSCertificate())
	if environment == "production" {
		return client.Production()
	}
	return client.Development()
}

// Configured reports whether the dispatcher has an APNs client.
func (d *Dispatcher) Configured() bool {
	return d.client != nil
}

// PassUpdated pushes a background wake notification to every device
// registered for serial. Failures on one device never block the others;
// the first error is returned for logging but delivery is best-effort.
func (d *Dispatcher) PassUpdated(ctx context.Context, serial string) error {
	if d.client == nil {
		d.logger.Debug("Push not configured, skipping pass update notification",
			slog.String("serial_number", serial),
		)
		return nil
	}

	registrations, err := d.store.ListRegistrationsBySerial(ctx, serial)
	if err != nil {
		return fmt.Errorf("failed to list registrations for %s: %w", serial, err)
	}
	if len(registrations) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.Concurrency)

	for _, registration := range registrations {
		g.Go(func() error {
			d.pushOne(gctx, serial, registration.PushToken)
			return nil
		})
	}
	return g.Wait()
}

// pushOne delivers to a single device, retrying transient failures with
// exponential backoff. Permanently rejected tokens are pruned so the next
// update does not retry a dead device. Every attempt's outcome is recorded
// in the push log.
func (d *Dispatcher) pushOne(ctx context.Context, serial, pushToken string) {
	notification := &apns2.Notification{
		DeviceToken: pushToken,
		Topic:       d.config.Topic,
		Payload:     []byte("{}"),
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(250*time.Millisecond))

	var response *apns2.Response
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := d.client.PushWithContext(ctx, notification)
		if err != nil {
			// transport failure, worth retrying
			return retry.RetryableError(err)
		}
		response = resp
		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("apns responded %d %s", resp.StatusCode, resp.Reason))
		}
		return nil
	})

	switch {
	case err != nil:
		d.recordOutcome(ctx, serial, pushToken, store.PushOutcomeFailed, err.Error())
		d.logger.Warn("Push delivery failed",
			slog.String("serial_number", serial),
			slog.String("error", err.Error()),
		)

	case response.Sent():
		d.recordOutcome(ctx, serial, pushToken, store.PushOutcomeSent, "")

	case isTokenDead(response):
		d.recordOutcome(ctx, serial, pushToken, store.PushOutcomePruned, response.Reason)
		if pruneErr := d.store.DeleteRegistrationsByToken(ctx, pushToken); pruneErr != nil {
			d.logger.Warn("Failed to prune dead push token",
				slog.String("serial_number", serial),
				slog.String("error", pruneErr.Error()),
			)
		}

	default:
		d.recordOutcome(ctx, serial, pushToken, store.PushOutcomeFailed,
			fmt.Sprintf("apns responded %d %s", response.StatusCode, response.Reason))
	}
}

// isTokenDead reports whether APNs rejected the token permanently.
func isTokenDead(response *apns2.Response) bool {
	if response.StatusCode == 410 {
		return true
	}
	switch response.Reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
		return true
	}
	return false
}

// recordOutcome appends a push log row; log failures are non-fatal.
func (d *Dispatcher) recordOutcome(ctx context.Context, serial, pushToken string, outcome store.PushLogOutcome, detail string) {
	metrics.RecordPushAttempt(string(outcome))
	err := d.store.AppendPushLog(ctx, store.PushLogEntry{
		SerialNumber: serial,
		PushToken:    pushToken,
		Outcome:      outcome,
		Detail:       detail,
	})
	if err != nil {
		d.logger.Warn("Failed to record push outcome",
			slog.String("serial_number", serial),
			slog.String("error", err.Error()),
		)
	}
}
