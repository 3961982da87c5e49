package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"whatsapp-campaign-launcher/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchFixture struct {
	contacts *fakeContacts
	messages *fakeMessages
	sender   *fakeSender
	sleeper  *recordingSleep
	d        *Dispatcher
	tenantID uuid.UUID
	channel  *domain.Channel
}

func newDispatchFixture() *dispatchFixture {
	f := &dispatchFixture{
		contacts: newFakeContacts(),
		messages: &fakeMessages{},
		sender:   &fakeSender{},
		sleeper:  &recordingSleep{},
		tenantID: uuid.New(),
	}
	f.channel = approvedChannel(f.tenantID)
	f.d = NewDispatcher(f.contacts, f.messages, NewTemplateProcessor(), f.sender, discardLogger())
	f.d.sleep = f.sleeper.sleep
	return f
}

func (f *dispatchFixture) batch(template string, mappings []domain.VariableMapping, rows ...domain.Row) *Batch {
	return &Batch{
		TenantID: f.tenantID,
		SenderID: uuid.New(),
		Channel:  f.channel,
		Rows:     rows,
		Request: domain.LaunchRequest{
			ChannelID:   f.channel.ID,
			PhoneColumn: "phone",
			NameColumn:  "name",
			Mappings:    mappings,
			Delay:       10 * time.Millisecond,
			Template:    domain.TemplateIdentity{Name: template, Language: "en_US"},
		},
	}
}

func TestDispatcherSentAndSkipped(t *testing.T) {
	f := newDispatchFixture()
	b := f.batch("welcome", nil,
		domain.Row{"phone": "5551234567", "name": "Ann"},
		domain.Row{"phone": "", "name": "Bob"},
	)

	var got collector
	counters, err := f.d.Run(context.Background(), b, got.emit)
	require.NoError(t, err)
	require.Len(t, got.events, 3)

	first := got.events[0]
	assert.Equal(t, domain.EventRow, first.Type)
	assert.Equal(t, domain.OutcomeSent, first.Status)
	assert.Equal(t, "+5551234567", first.Phone)
	assert.Equal(t, "WhatsApp ID: wamid.+5551234567", first.Detail)
	require.NotNil(t, first.Index)
	assert.Equal(t, 0, *first.Index)
	assert.Equal(t, 2, first.Total)
	assert.Equal(t, domain.Counters{Sent: 1}, first.Counters)

	second := got.events[1]
	assert.Equal(t, domain.OutcomeSkipped, second.Status)
	assert.Equal(t, "EMPTY", second.Phone)
	assert.Equal(t, "No phone", second.Detail)
	assert.Equal(t, 1, *second.Index)

	done := got.events[2]
	assert.Equal(t, domain.EventDone, done.Type)
	assert.Nil(t, done.Index)
	assert.Equal(t, domain.Counters{Sent: 1, Skipped: 1}, done.Counters)
	assert.Equal(t, 2, done.Total)
	assert.Equal(t, done.Counters, counters)

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "+5551234567", f.sender.sent[0].To)
	assert.Equal(t, "welcome", f.sender.sent[0].Template.Name)

	require.Len(t, f.messages.logged, 1)
	assert.Equal(t, "[welcome]", f.messages.logged[0].Content)
	assert.Equal(t, "wamid.+5551234567", f.messages.logged[0].ProviderMessageID)
	assert.Equal(t, b.SenderID, f.messages.logged[0].SenderID)

	assert.Equal(t, "Ann", f.contacts.contacts["+5551234567"].Name)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}, f.sleeper.calls)
}

func TestDispatcherFillsTemplateVariables(t *testing.T) {
	f := newDispatchFixture()
	mappings := []domain.VariableMapping{
		{Column: "code", VariableKey: "2"},
		{Column: "name", VariableKey: "1"},
	}
	b := f.batch("promo", mappings, domain.Row{"phone": "+44 20 7946 0958", "name": "Ann", "code": "SAVE10"})
	b.Request.BodyText = "Hi {{1}}, use code {{2}}"

	var got collector
	_, err := f.d.Run(context.Background(), b, got.emit)
	require.NoError(t, err)

	require.Len(t, f.sender.sent, 1)
	params := f.sender.sent[0].Template.Parameters
	require.Len(t, params, 2)
	assert.Equal(t, "Ann", params[0].Text)
	assert.Equal(t, "SAVE10", params[1].Text)

	require.Len(t, f.messages.logged, 1)
	assert.Equal(t, "Hi Ann, use code SAVE10", f.messages.logged[0].Content)
	assert.Equal(t, "+442079460958", f.sender.sent[0].To)
}

func TestDispatcherSendsWithoutMappings(t *testing.T) {
	f := newDispatchFixture()
	b := f.batch("promo", nil,
		domain.Row{"phone": "5551234567", "name": "Ann"},
		domain.Row{"phone": "", "name": "Bob"},
	)

	var got collector
	counters, err := f.d.Run(context.Background(), b, got.emit)
	require.NoError(t, err)

	require.Len(t, got.events, 3)
	assert.Equal(t, domain.OutcomeSent, got.events[0].Status)
	assert.Equal(t, domain.OutcomeSkipped, got.events[1].Status)
	assert.Equal(t, domain.Counters{Sent: 1, Skipped: 1}, counters)
	require.Len(t, f.sender.sent, 1)
	assert.Empty(t, f.sender.sent[0].Template.Parameters)
}

func TestDispatcherUnresolvableTemplateContinues(t *testing.T) {
	f := newDispatchFixture()
	b := f.batch("missing", nil,
		domain.Row{"phone": "5551234567", "name": "Ann"},
		domain.Row{"phone": "5557654321", "name": "Cid"},
	)

	var got collector
	counters, err := f.d.Run(context.Background(), b, got.emit)
	require.NoError(t, err)

	require.Len(t, got.events, 3)
	for _, ev := range got.events[:2] {
		assert.Equal(t, domain.OutcomeError, ev.Status)
		assert.Contains(t, ev.Detail, "Template not found or invalid")
	}
	assert.Equal(t, "5551234567", got.events[0].Phone)
	assert.Equal(t, domain.Counters{Failed: 2}, counters)
	assert.Empty(t, f.sender.sent)
}

func TestDispatcherCountersAddUp(t *testing.T) {
	f := newDispatchFixture()
	f.sender.failFor = map[string]error{"+5550000002": errors.New("rate limited")}
	f.contacts.failPhone = "+5550000004"

	b := f.batch("welcome", nil,
		domain.Row{"phone": "5550000001"},
		domain.Row{"phone": "5550000002"},
		domain.Row{"phone": "  "},
		domain.Row{"phone": "5550000004"},
		domain.Row{"phone": "5550000005"},
	)

	var got collector
	counters, err := f.d.Run(context.Background(), b, got.emit)
	require.NoError(t, err)

	assert.Equal(t, domain.Counters{Sent: 2, Failed: 2, Skipped: 1}, counters)
	assert.Equal(t, len(b.Rows), counters.Processed())

	require.Len(t, got.events, len(b.Rows)+1)
	for i, ev := range got.events[:len(b.Rows)] {
		assert.Equal(t, i+1, ev.Processed(), "counters after row %d", i)
		assert.Equal(t, i, *ev.Index)
	}
	assert.Contains(t, got.events[1].Detail, "send template: rate limited")
	assert.Contains(t, got.events[3].Detail, "resolve contact")
}

func TestDispatcherEmitFailureAborts(t *testing.T) {
	f := newDispatchFixture()
	b := f.batch("welcome", nil,
		domain.Row{"phone": "5550000001"},
		domain.Row{"phone": "5550000002"},
		domain.Row{"phone": "5550000003"},
	)

	calls := 0
	emit := func(domain.DispatchEvent) error {
		calls++
		if calls == 2 {
			return errors.New("broken pipe")
		}
		return nil
	}

	counters, err := f.d.Run(context.Background(), b, emit)
	require.ErrorIs(t, err, domain.ErrStreamClosed)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, counters.Sent)
	assert.Len(t, f.sender.sent, 2)
}

func TestDispatcherStopsOnCancel(t *testing.T) {
	f := newDispatchFixture()
	b := f.batch("welcome", nil, domain.Row{"phone": "5550000001"}, domain.Row{"phone": "5550000002"})

	ctx, cancel := context.WithCancel(context.Background())
	f.d.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	var got collector
	_, err := f.d.Run(ctx, b, got.emit)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, got.events, 1)
}

func TestDispatcherRecoversPanics(t *testing.T) {
	f := newDispatchFixture()
	f.d.renderer = panicRenderer{}
	b := f.batch("welcome", nil, domain.Row{"phone": "5550000001"}, domain.Row{"phone": ""})

	var got collector
	counters, err := f.d.Run(context.Background(), b, got.emit)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeError, got.events[0].Status)
	assert.Equal(t, "panic: renderer exploded", got.events[0].Detail)
	assert.Equal(t, domain.Counters{Failed: 1, Skipped: 1}, counters)
}

func TestDispatcherLogFailureIsRowError(t *testing.T) {
	f := newDispatchFixture()
	f.messages.fail = errors.New("db down")
	b := f.batch("welcome", nil, domain.Row{"phone": "5550000001"})

	var got collector
	counters, err := f.d.Run(context.Background(), b, got.emit)
	require.NoError(t, err)

	assert.Equal(t, 1, counters.Failed)
	assert.Equal(t, "log message wamid.+5550000001: db down", got.events[0].Detail)
}

func TestDispatcherEmptyBatchEmitsDone(t *testing.T) {
	f := newDispatchFixture()

	var got collector
	counters, err := f.d.Run(context.Background(), f.batch("welcome", nil), got.emit)
	require.NoError(t, err)

	require.Len(t, got.events, 1)
	assert.Equal(t, domain.EventDone, got.events[0].Type)
	assert.Zero(t, counters.Processed())
	assert.Empty(t, f.sleeper.calls)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", maxDetailLen))

	long := strings.Repeat("é", 250)
	out := truncate(long, maxDetailLen)
	assert.Equal(t, maxDetailLen, len([]rune(out)))
	assert.True(t, strings.HasSuffix(out, "..."))
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
