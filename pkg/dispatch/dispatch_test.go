package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/solar-portal/pkg/clock"
	"github.com/txn2/solar-portal/pkg/cooldown"
	"github.com/txn2/solar-portal/pkg/mailer"
	"github.com/txn2/solar-portal/pkg/notification"
)

var (
	testNow    = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	testPolicy = cooldown.Policy{CooldownWindow: 5 * time.Minute, LeaseDuration: 30 * time.Second}
	testKey    = cooldown.Key{RecipientID: "U1", ProjectID: "P1"}
)

type fakeTransport struct {
	mu    sync.Mutex
	sent  []mailer.Message
	err   error
	explode bool
	block bool
}

func (f *fakeTransport) Send(ctx context.Context, msg mailer.Message) error {
	if f.explode {
		panic("smtp exploded")
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type failingRecords struct {
	*notification.MemoryStore
	failAfter int
	inserted  int
}

func (f *failingRecords) Insert(ctx context.Context, rec *notification.Record) error {
	if f.inserted >= f.failAfter {
		return errors.New("records table unavailable")
	}
	f.inserted++
	return f.MemoryStore.Insert(ctx, rec)
}

type failingSlots struct {
	*cooldown.MemoryStore
}

func (failingSlots) TryClaim(context.Context, cooldown.Key, time.Time, cooldown.Policy) (cooldown.Decision, error) {
	return cooldown.Decision{}, errors.New("slot store unavailable")
}

type harness struct {
	dispatcher *Dispatcher
	records    notification.Store
	slots      cooldown.Store
	transport  *fakeTransport
	clock      *clock.Fake
}

func newHarness(t *testing.T, records notification.Store, slots cooldown.Store, timeout time.Duration) *harness {
	t.Helper()
	if records == nil {
		records = notification.NewMemoryStore()
	}
	if slots == nil {
		slots = cooldown.NewMemoryStore()
	}
	fake := clock.NewFake(testNow)
	claimer, err := cooldown.NewClaimer(slots, testPolicy, fake)
	require.NoError(t, err)
	renderer, err := mailer.NewTemplateRenderer(nil)
	require.NoError(t, err)

	transport := &fakeTransport{}
	d, err := New(Config{
		Records:     records,
		Claimer:     claimer,
		Transport:   transport,
		Renderer:    renderer,
		Clock:       fake,
		SendTimeout: timeout,
	})
	require.NoError(t, err)
	return &harness{dispatcher: d, records: records, slots: slots, transport: transport, clock: fake}
}

func commentEvent() Event {
	return Event{
		Type:      notification.TypeCommentAdded,
		ProjectID: "P1",
		ActorID:   "A1",
		ActorRole: notification.RoleAdmin,
		Recipients: []Recipient{
			{UserID: "U1", Email: "u1@example.com", EmailEnabled: true},
		},
		Payload: map[string]any{"excerpt": "Inspection booked"},
	}
}

func TestNew_Validation(t *testing.T) {
	claimer, err := cooldown.NewClaimer(cooldown.NewMemoryStore(), testPolicy, nil)
	require.NoError(t, err)
	renderer, err := mailer.NewTemplateRenderer(nil)
	require.NoError(t, err)
	full := Config{
		Records:   notification.NewMemoryStore(),
		Claimer:   claimer,
		Transport: &fakeTransport{},
		Renderer:  renderer,
	}

	_, err = New(full)
	require.NoError(t, err)

	for name, mutate := range map[string]func(*Config){
		"records":   func(c *Config) { c.Records = nil },
		"claimer":   func(c *Config) { c.Claimer = nil },
		"transport": func(c *Config) { c.Transport = nil },
		"renderer":  func(c *Config) { c.Renderer = nil },
		"timeout":   func(c *Config) { c.SendTimeout = time.Minute },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := full
			mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestDispatch_SecondEventInsideWindowOnlyCreatesRecord(t *testing.T) {
	h := newHarness(t, nil, nil, 0)
	ctx := context.Background()

	first, err := h.dispatcher.Dispatch(ctx, commentEvent())
	require.NoError(t, err)
	assert.Equal(t, Result{RecordsCreated: 1, EmailAttempted: 1, EmailSent: 1}, first)

	h.clock.Advance(500 * time.Millisecond)
	second, err := h.dispatcher.Dispatch(ctx, commentEvent())
	require.NoError(t, err)
	assert.Equal(t, Result{RecordsCreated: 1, EmailSkipped: 1}, second)

	assert.Equal(t, 1, h.transport.count())

	recs, err := h.records.List(ctx, notification.Filter{RecipientID: "U1"})
	require.NoError(t, err)
	assert.Len(t, recs, 2, "both events are visible in-app")

	d := cooldown.Evaluate(mustSlot(t, h.slots), h.clock.Now(), testPolicy)
	assert.False(t, d.Granted)
	assert.Equal(t, 299500*time.Millisecond, d.RetryAfter)
}

func TestDispatch_FailedSendReleasesSlot(t *testing.T) {
	h := newHarness(t, nil, nil, 0)
	ctx := context.Background()

	h.transport.err = errors.New("provider 503")
	res, err := h.dispatcher.Dispatch(ctx, commentEvent())
	require.NoError(t, err, "email failure never reaches the caller")
	assert.Equal(t, Result{RecordsCreated: 1, EmailAttempted: 1}, res)

	slot := mustSlot(t, h.slots)
	assert.Equal(t, cooldown.StateFree, slot.State)

	h.transport.err = nil
	h.clock.Advance(time.Second)
	res, err = h.dispatcher.Dispatch(ctx, commentEvent())
	require.NoError(t, err)
	assert.Equal(t, 1, res.EmailSent)
}

func TestDispatch_TransportPanicIsContained(t *testing.T) {
	h := newHarness(t, nil, nil, 0)
	h.transport.explode = true

	res, err := h.dispatcher.Dispatch(context.Background(), commentEvent())
	require.NoError(t, err)
	assert.Equal(t, 1, res.EmailAttempted)
	assert.Zero(t, res.EmailSent)
	assert.Equal(t, cooldown.StateFree, mustSlot(t, h.slots).State)
}

func TestDispatch_SendTimeoutReleasesSlot(t *testing.T) {
	h := newHarness(t, nil, nil, 20*time.Millisecond)
	h.transport.block = true

	res, err := h.dispatcher.Dispatch(context.Background(), commentEvent())
	require.NoError(t, err)
	assert.Zero(t, res.EmailSent)
	assert.Equal(t, cooldown.StateFree, mustSlot(t, h.slots).State)
}

func TestDispatch_ClaimErrorSkipsEmail(t *testing.T) {
	h := newHarness(t, nil, failingSlots{cooldown.NewMemoryStore()}, 0)

	res, err := h.dispatcher.Dispatch(context.Background(), commentEvent())
	require.NoError(t, err)
	assert.Equal(t, Result{RecordsCreated: 1, EmailSkipped: 1}, res)
	assert.Zero(t, h.transport.count())
}

func TestDispatch_RecordFailureIsSurfaced(t *testing.T) {
	records := &failingRecords{MemoryStore: notification.NewMemoryStore(), failAfter: 1}
	h := newHarness(t, records, nil, 0)

	ev := commentEvent()
	ev.Recipients = append(ev.Recipients, Recipient{UserID: "U2", Email: "u2@example.com", EmailEnabled: true})

	res, err := h.dispatcher.Dispatch(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating notification for U2")
	assert.Equal(t, 1, res.RecordsCreated)
	assert.Zero(t, h.transport.count(), "no email when records could not be written")
}

func TestDispatch_InvalidEvent(t *testing.T) {
	h := newHarness(t, nil, nil, 0)
	_, err := h.dispatcher.Dispatch(context.Background(), Event{Type: notification.TypeCommentAdded})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestDispatch_RecipientsWithoutEmail(t *testing.T) {
	h := newHarness(t, nil, nil, 0)
	ev := commentEvent()
	ev.Recipients = []Recipient{
		{UserID: "U1", Email: "u1@example.com"},
		{UserID: "U2", EmailEnabled: true},
		{UserID: "A1", Email: "a1@example.com", EmailEnabled: true},
	}

	res, err := h.dispatcher.Dispatch(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, Result{RecordsCreated: 2}, res)

	rec, err := h.records.List(context.Background(), notification.Filter{RecipientID: "U2"})
	require.NoError(t, err)
	require.Len(t, rec, 1)
	assert.Equal(t, "A1", rec[0].SenderID)
	assert.Equal(t, notification.RoleAdmin, rec[0].SenderRole)
}

func TestDispatch_ConcurrentEventsSendOnce(t *testing.T) {
	h := newHarness(t, nil, nil, 0)
	ctx := context.Background()

	const events = 16
	var wg sync.WaitGroup
	for range events {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.dispatcher.Dispatch(ctx, commentEvent())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.transport.count())
	n, err := h.records.UnreadCount(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, events, n)
}

func mustSlot(t *testing.T, store cooldown.Store) *cooldown.Slot {
	t.Helper()
	slot, err := store.Get(context.Background(), testKey)
	require.NoError(t, err)
	require.NotNil(t, slot)
	return slot
}
