package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"whatsapp-campaign-launcher/internal/domain"

	"github.com/google/uuid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeContacts struct {
	mu            sync.Mutex
	contacts      map[string]*domain.Contact
	links         map[string]*domain.ContactChannel
	conversations map[uuid.UUID]*domain.Conversation
	failPhone     string
}

func newFakeContacts() *fakeContacts {
	return &fakeContacts{
		contacts:      map[string]*domain.Contact{},
		links:         map[string]*domain.ContactChannel{},
		conversations: map[uuid.UUID]*domain.Conversation{},
	}
}

func (f *fakeContacts) FindOrCreateContact(_ context.Context, tenantID uuid.UUID, phone, name string) (*domain.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if phone == f.failPhone {
		return nil, errors.New("contacts unavailable")
	}
	if c, ok := f.contacts[phone]; ok {
		return c, nil
	}
	if name == "" {
		name = phone
	}
	c := &domain.Contact{ID: uuid.New(), TenantID: tenantID, PhoneNumber: phone, Name: name}
	f.contacts[phone] = c
	return c, nil
}

func (f *fakeContacts) FindOrCreateContactChannel(_ context.Context, c *domain.Contact, channelID uuid.UUID, sourceID string) (*domain.ContactChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := c.ID.String() + channelID.String() + sourceID
	if l, ok := f.links[k]; ok {
		return l, nil
	}
	l := &domain.ContactChannel{ID: uuid.New(), ContactID: c.ID, ChannelID: channelID, SourceID: sourceID}
	f.links[k] = l
	return l, nil
}

func (f *fakeContacts) FindOrCreateConversation(_ context.Context, tenantID, channelID uuid.UUID, c *domain.Contact, l *domain.ContactChannel) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv, ok := f.conversations[c.ID]; ok {
		return conv, nil
	}
	conv := &domain.Conversation{ID: uuid.New(), TenantID: tenantID, ChannelID: channelID, ContactID: c.ID, ContactChannelID: l.ID}
	f.conversations[c.ID] = conv
	return conv, nil
}

type fakeMessages struct {
	mu       sync.Mutex
	logged   []domain.OutgoingMessage
	statuses map[string]domain.MessageStatus
	fail     error
}

func (f *fakeMessages) LogOutgoingMessage(_ context.Context, msg domain.OutgoingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.logged = append(f.logged, msg)
	return nil
}

func (f *fakeMessages) UpdateMessageStatusBySourceID(_ context.Context, sourceID string, status domain.MessageStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.statuses[sourceID]; !ok {
		return domain.ErrMessageNotFound
	}
	f.statuses[sourceID] = status
	return nil
}

type sentMessage struct {
	To       string
	Template domain.RenderedTemplate
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	nextID  func(n int) string
	failFor map[string]error
}

func (f *fakeSender) SendTemplate(_ context.Context, _ *domain.Channel, to string, tpl domain.RenderedTemplate) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[to]; err != nil {
		return "", err
	}
	f.sent = append(f.sent, sentMessage{To: to, Template: tpl})
	if f.nextID == nil {
		return "wamid." + to, nil
	}
	return f.nextID(len(f.sent)), nil
}

type panicRenderer struct{}

func (panicRenderer) Render(context.Context, *domain.Channel, domain.TemplatePayload) (domain.RenderedTemplate, error) {
	panic("renderer exploded")
}

type fakeChannels struct {
	mu       sync.Mutex
	channels map[uuid.UUID]*domain.Channel
	events   []domain.AccountStatusEvent
}

func newFakeChannels(chs ...*domain.Channel) *fakeChannels {
	f := &fakeChannels{channels: map[uuid.UUID]*domain.Channel{}}
	for _, ch := range chs {
		f.channels[ch.ID] = ch
	}
	return f
}

func (f *fakeChannels) GetChannel(_ context.Context, tenantID, channelID uuid.UUID) (*domain.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok || ch.TenantID != tenantID {
		return nil, domain.ErrChannelNotFound
	}
	cp := *ch
	return &cp, nil
}

func (f *fakeChannels) ListChannels(_ context.Context, tenantID uuid.UUID) ([]domain.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Channel
	for _, ch := range f.channels {
		if ch.TenantID == tenantID {
			out = append(out, *ch)
		}
	}
	return out, nil
}

func (f *fakeChannels) find(match func(*domain.Channel) bool) (*domain.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.channels {
		if match(ch) {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, domain.ErrChannelNotFound
}

func (f *fakeChannels) GetChannelByPhoneNumberID(_ context.Context, id string) (*domain.Channel, error) {
	return f.find(func(ch *domain.Channel) bool { return ch.ProviderConfig.PhoneNumberID == id })
}

func (f *fakeChannels) GetChannelByBusinessAccountID(_ context.Context, id string) (*domain.Channel, error) {
	return f.find(func(ch *domain.Channel) bool { return ch.ProviderConfig.BusinessAccountID == id })
}

func (f *fakeChannels) SaveChannelHealth(_ context.Context, ch *domain.Channel, ev domain.AccountStatusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *ch
	f.channels[ch.ID] = &cp
	f.events = append(f.events, ev)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.LaunchEvent
	fail   error
}

func (f *fakePublisher) Publish(_ context.Context, ev domain.LaunchEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.events = append(f.events, ev)
	return nil
}

type fakeRuns struct {
	runs []domain.LaunchRun
}

func (f *fakeRuns) SaveLaunchRun(_ context.Context, run domain.LaunchRun) error {
	f.runs = append(f.runs, run)
	return nil
}

// recordingSleep replaces the inter-row delay in tests.
type recordingSleep struct {
	calls []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return nil
}

// collect is an Emit that stores every event.
type collector struct {
	events []domain.DispatchEvent
}

func (c *collector) emit(ev domain.DispatchEvent) error {
	c.events = append(c.events, ev)
	return nil
}

func approvedChannel(tenantID uuid.UUID) *domain.Channel {
	return &domain.Channel{
		ID:       uuid.New(),
		TenantID: tenantID,
		Name:     "Main line",
		ProviderConfig: domain.ProviderConfig{
			PhoneNumberID:     "PN1",
			BusinessAccountID: "WABA1",
		},
		AccountStatus: domain.AccountActive,
		Templates: []domain.ChannelTemplate{
			{
				Name:     "promo",
				Language: "en_US",
				Status:   "APPROVED",
				Components: []domain.TemplateComponent{
					{Type: "BODY", Text: "Hi {{1}}, use code {{2}}"},
				},
			},
			{
				Name:     "welcome",
				Language: "en_US",
				Status:   "APPROVED",
				Components: []domain.TemplateComponent{
					{Type: "BODY", Text: "Welcome aboard"},
				},
			},
			{
				Name:     "legacy",
				Language: "en_US",
				Status:   "REJECTED",
			},
		},
	}
}
