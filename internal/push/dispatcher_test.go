package push

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stampwise/passd/internal/crypto"
	"github.com/stampwise/passd/internal/store"
)

type fakeStore struct {
	mu            sync.Mutex
	registrations []store.Registration
	pruned        []string
	log           []store.PushLogEntry
}

func (f *fakeStore) ListRegistrationsBySerial(_ context.Context, serial string) ([]store.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Registration
	for _, r := range f.registrations {
		if r.SerialNumber == serial {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteRegistrationsByToken(_ context.Context, pushToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned = append(f.pruned, pushToken)
	return nil
}

func (f *fakeStore) AppendPushLog(_ context.Context, entry store.PushLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, entry)
	return nil
}

func (f *fakeStore) outcomes() map[string]store.PushLogOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]store.PushLogOutcome{}
	for _, entry := range f.log {
		out[entry.PushToken] = entry.Outcome
	}
	return out
}

// fakeClient answers pushes from a canned response table keyed by device
// token.
type fakeClient struct {
	mu        sync.Mutex
	responses map[string]*apns2.Response
	errs      map[string]error
	attempts  map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		responses: map[string]*apns2.Response{},
		errs:      map[string]error{},
		attempts:  map[string]int{},
	}
}

func (f *fakeClient) PushWithContext(_ apns2.Context, n *apns2.Notification) (*apns2.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[n.DeviceToken]++
	if err, ok := f.errs[n.DeviceToken]; ok {
		return nil, err
	}
	if resp, ok := f.responses[n.DeviceToken]; ok {
		return resp, nil
	}
	return &apns2.Response{StatusCode: 200}, nil
}

func registration(serial, token string) store.Registration {
	return store.Registration{SerialNumber: serial, PushToken: token}
}

func newTestDispatcher(client Client, pushStore Store) *Dispatcher {
	return NewDispatcher(client, pushStore, Config{
		Topic:       "pass.io.stampwise.loyalty",
		Concurrency: 2,
	}, slog.Default())
}

func TestPassUpdatedDeliversToAllDevices(t *testing.T) {
	pushStore := &fakeStore{registrations: []store.Registration{
		registration("SN-1", "tok-a"),
		registration("SN-1", "tok-b"),
		registration("SN-2", "tok-other"),
	}}
	client := newFakeClient()
	dispatcher := newTestDispatcher(client, pushStore)

	err := dispatcher.PassUpdated(context.Background(), "SN-1")
	require.NoError(t, err)

	assert.Equal(t, 1, client.attempts["tok-a"])
	assert.Equal(t, 1, client.attempts["tok-b"])
	assert.Zero(t, client.attempts["tok-other"], "other pass's device must not be pushed")

	outcomes := pushStore.outcomes()
	assert.Equal(t, store.PushOutcomeSent, outcomes["tok-a"])
	assert.Equal(t, store.PushOutcomeSent, outcomes["tok-b"])
}

func TestPassUpdatedPrunesDeadTokens(t *testing.T) {
	pushStore := &fakeStore{registrations: []store.Registration{
		registration("SN-1", "tok-dead"),
		registration("SN-1", "tok-live"),
	}}
	client := newFakeClient()
	client.responses["tok-dead"] = &apns2.Response{StatusCode: 410, Reason: apns2.ReasonUnregistered}
	dispatcher := newTestDispatcher(client, pushStore)

	err := dispatcher.PassUpdated(context.Background(), "SN-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"tok-dead"}, pushStore.pruned)

	outcomes := pushStore.outcomes()
	assert.Equal(t, store.PushOutcomePruned, outcomes["tok-dead"])
	assert.Equal(t, store.PushOutcomeSent, outcomes["tok-live"], "live device unaffected by dead neighbour")
}

func TestPassUpdatedRetriesTransientFailures(t *testing.T) {
	pushStore := &fakeStore{registrations: []store.Registration{
		registration("SN-1", "tok-flaky"),
	}}
	client := newFakeClient()
	client.errs["tok-flaky"] = fmt.Errorf("connection reset")
	dispatcher := newTestDispatcher(client, pushStore)

	err := dispatcher.PassUpdated(context.Background(), "SN-1")
	require.NoError(t, err, "delivery failures are logged, not returned")

	assert.Greater(t, client.attempts["tok-flaky"], 1, "transient failure retried")
	assert.Equal(t, store.PushOutcomeFailed, pushStore.outcomes()["tok-flaky"])
	assert.Empty(t, pushStore.pruned, "transient failures never prune")
}

func TestPassUpdatedBadRequestNotRetried(t *testing.T) {
	pushStore := &fakeStore{registrations: []store.Registration{
		registration("SN-1", "tok-bad"),
	}}
	client := newFakeClient()
	client.responses["tok-bad"] = &apns2.Response{StatusCode: 400, Reason: apns2.ReasonBadTopic}
	dispatcher := newTestDispatcher(client, pushStore)

	err := dispatcher.PassUpdated(context.Background(), "SN-1")
	require.NoError(t, err)

	assert.Equal(t, 1, client.attempts["tok-bad"], "permanent rejection must not be retried")
	assert.Equal(t, store.PushOutcomeFailed, pushStore.outcomes()["tok-bad"])
}

func TestPassUpdatedUnconfigured(t *testing.T) {
	pushStore := &fakeStore{registrations: []store.Registration{
		registration("SN-1", "tok-a"),
	}}
	dispatcher := newTestDispatcher(nil, pushStore)

	assert.False(t, dispatcher.Configured())

	err := dispatcher.PassUpdated(context.Background(), "SN-1")
	require.NoError(t, err)
	assert.Empty(t, pushStore.log, "no-op dispatcher must not log attempts")
}

func TestPassUpdatedNoRegistrations(t *testing.T) {
	pushStore := &fakeStore{}
	client := newFakeClient()
	dispatcher := newTestDispatcher(client, pushStore)

	err := dispatcher.PassUpdated(context.Background(), "SN-1")
	require.NoError(t, err)
	assert.Empty(t, client.attempts)
}

func testMaterial(t *testing.T) *crypto.Material {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Pass Type ID: pass.io.stampwise.loyalty"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &crypto.Material{
		Certificate:  cert,
		PrivateKey:   key,
		Intermediate: cert,
	}
}

func TestNewClientEnvironments(t *testing.T) {
	material := testMaterial(t)

	production := NewClient(material, "production")
	require.NotNil(t, production)
	assert.Equal(t, apns2.HostProduction, production.Host)

	sandbox := NewClient(material, "sandbox")
	require.NotNil(t, sandbox)
	assert.Equal(t, apns2.HostDevelopment, sandbox.Host)
}
