package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"whatsapp-campaign-launcher/internal/adapters/cache/memory"
	"whatsapp-campaign-launcher/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type campaignFixture struct {
	clock     time.Time
	staging   *memory.StagingStore
	channels  *fakeChannels
	channel   *domain.Channel
	sender    *fakeSender
	sleeper   *recordingSleep
	publisher *fakePublisher
	svc       *CampaignService
	key       domain.StagingKey
}

func newCampaignFixture() *campaignFixture {
	f := &campaignFixture{
		clock:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		sender:    &fakeSender{},
		sleeper:   &recordingSleep{},
		publisher: &fakePublisher{},
		key:       domain.StagingKey{TenantID: uuid.New(), OperatorID: uuid.New()},
	}
	f.staging = memory.NewWithClock(func() time.Time { return f.clock })
	f.channel = approvedChannel(f.key.TenantID)
	f.channels = newFakeChannels(f.channel)

	d := NewDispatcher(newFakeContacts(), &fakeMessages{}, NewTemplateProcessor(), f.sender, discardLogger())
	d.sleep = f.sleeper.sleep
	f.svc = NewCampaignService(f.staging, f.channels, d, f.publisher, DefaultOptions(), discardLogger())
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *campaignFixture) upload(t *testing.T, csv string) UploadResult {
	t.Helper()
	res, err := f.svc.Upload(context.Background(), f.key, []byte(csv), "")
	require.NoError(t, err)
	return res
}

func (f *campaignFixture) input() LaunchInput {
	return LaunchInput{
		ChannelID:    f.channel.ID,
		PhoneColumn:  "phone",
		NameColumn:   "name",
		TemplateName: "welcome",
	}
}

func intPtr(n int) *int { return &n }

func TestUploadStagesAndPreviews(t *testing.T) {
	f := newCampaignFixture()

	res := f.upload(t, "phone,name\n1,a\n2,b\n3,c\n4,d\n5,e\n6,f\n7,g\n")

	assert.Equal(t, []string{"phone", "name"}, res.Headers)
	assert.Equal(t, 7, res.RowCount)
	require.Len(t, res.Preview, PreviewRows)
	assert.Equal(t, domain.Row{"phone": "1", "name": "a"}, res.Preview[0])

	imp, err := f.staging.Get(context.Background(), f.key)
	require.NoError(t, err)
	assert.Len(t, imp.Rows, 7)
}

func TestUploadReplacesPreviousImport(t *testing.T) {
	f := newCampaignFixture()
	f.upload(t, "phone,name\n1,a\n2,b\n")
	f.upload(t, "mobile\n9\n")

	imp, err := f.staging.Get(context.Background(), f.key)
	require.NoError(t, err)
	assert.Equal(t, []string{"mobile"}, imp.Headers)
	assert.Equal(t, []domain.Row{{"mobile": "9"}}, imp.Rows)
}

func TestUploadRejectsEmptyCSV(t *testing.T) {
	f := newCampaignFixture()
	f.upload(t, "phone\n1\n")

	_, err := f.svc.Upload(context.Background(), f.key, []byte("phone\n"), "")
	require.ErrorIs(t, err, domain.ErrEmptyDataset)

	imp, err := f.staging.Get(context.Background(), f.key)
	require.NoError(t, err)
	assert.Len(t, imp.Rows, 1)
}

func TestStagedImportExpires(t *testing.T) {
	f := newCampaignFixture()
	f.upload(t, "phone,name\n5551234567,Ann\n")

	res, err := f.svc.Validate(context.Background(), f.key, ValidateInput{PhoneColumn: "phone"})
	require.NoError(t, err)
	assert.True(t, res.Valid)

	f.clock = f.clock.Add(time.Hour)

	res, err = f.svc.Validate(context.Background(), f.key, ValidateInput{PhoneColumn: "phone"})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"No CSV uploaded, please upload a CSV first"}, res.Errors)

	_, err = f.svc.PrepareLaunch(context.Background(), f.key, f.input())
	assert.ErrorIs(t, err, domain.ErrNoStagedImport)
}

func TestStagingIsScopedPerOperator(t *testing.T) {
	f := newCampaignFixture()
	f.upload(t, "phone\n5551234567\n")

	other := domain.StagingKey{TenantID: f.key.TenantID, OperatorID: uuid.New()}
	res, err := f.svc.Validate(context.Background(), other, ValidateInput{PhoneColumn: "phone"})
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestPrepareLaunchErrors(t *testing.T) {
	f := newCampaignFixture()
	ctx := context.Background()

	in := f.input()
	_, err := f.svc.PrepareLaunch(ctx, f.key, in)
	assert.ErrorIs(t, err, domain.ErrNoStagedImport)

	f.upload(t, "phone,name\n5551234567,Ann\n")

	in.PhoneColumn = " "
	_, err = f.svc.PrepareLaunch(ctx, f.key, in)
	assert.ErrorIs(t, err, domain.ErrInvalidLaunch)

	in = f.input()
	in.TemplateName = ""
	_, err = f.svc.PrepareLaunch(ctx, f.key, in)
	assert.ErrorIs(t, err, domain.ErrInvalidLaunch)

	in = f.input()
	in.ChannelID = uuid.New()
	_, err = f.svc.PrepareLaunch(ctx, f.key, in)
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)

	foreign := domain.StagingKey{TenantID: uuid.New(), OperatorID: f.key.OperatorID}
	_, err = f.svc.Upload(ctx, foreign, []byte("phone\n1\n"), "")
	require.NoError(t, err)
	_, err = f.svc.PrepareLaunch(ctx, foreign, f.input())
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
}

func TestLaunchRunsAndPublishes(t *testing.T) {
	f := newCampaignFixture()
	f.upload(t, "phone,name\n5551234567,Ann\n,Bob\n")

	l, err := f.svc.PrepareLaunch(context.Background(), f.key, f.input())
	require.NoError(t, err)
	assert.Equal(t, 2, l.Total())

	var got collector
	counters, err := l.Run(context.Background(), got.emit)
	require.NoError(t, err)
	assert.Equal(t, domain.Counters{Sent: 1, Skipped: 1}, counters)
	require.Len(t, got.events, 3)

	require.Len(t, f.publisher.events, 3)
	for i, ev := range f.publisher.events {
		assert.Equal(t, l.ID, ev.LaunchID)
		assert.Equal(t, f.key.TenantID, ev.TenantID)
		assert.Equal(t, f.key.OperatorID, ev.OperatorID)
		assert.Equal(t, f.channel.ID, ev.ChannelID)
		assert.Equal(t, "welcome", ev.Template)
		assert.Equal(t, got.events[i], ev.Event)
		assert.Equal(t, f.clock, ev.EmittedAt)
	}

	imp, err := f.staging.Get(context.Background(), f.key)
	require.NoError(t, err)
	assert.Len(t, imp.Rows, 2, "staged rows survive a launch")
}

func TestAbortedLaunchPublishesSummary(t *testing.T) {
	f := newCampaignFixture()
	f.upload(t, "phone\n5551234567\n5557654321\n")

	l, err := f.svc.PrepareLaunch(context.Background(), f.key, f.input())
	require.NoError(t, err)

	emitted := 0
	counters, err := l.Run(context.Background(), func(domain.DispatchEvent) error {
		if emitted == 1 {
			return errors.New("broken pipe")
		}
		emitted++
		return nil
	})
	require.ErrorIs(t, err, domain.ErrStreamClosed)

	require.Len(t, f.publisher.events, 2)
	last := f.publisher.events[1].Event
	assert.Equal(t, domain.EventAborted, last.Type)
	assert.Equal(t, counters, last.Counters)
	assert.Equal(t, 2, last.Total)
	assert.Contains(t, last.Detail, "broken pipe")
	assert.Equal(t, l.ID, f.publisher.events[1].LaunchID)
}

func TestLaunchSurvivesPublisherFailure(t *testing.T) {
	f := newCampaignFixture()
	f.publisher.fail = errors.New("amqp closed")
	f.upload(t, "phone\n5551234567\n")

	l, err := f.svc.PrepareLaunch(context.Background(), f.key, f.input())
	require.NoError(t, err)

	var got collector
	counters, err := l.Run(context.Background(), got.emit)
	require.NoError(t, err)
	assert.Equal(t, 1, counters.Sent)
	assert.Len(t, got.events, 2)
}

func TestLaunchWithoutPublisher(t *testing.T) {
	f := newCampaignFixture()
	f.svc.publisher = nil
	f.upload(t, "phone\n5551234567\n")

	l, err := f.svc.PrepareLaunch(context.Background(), f.key, f.input())
	require.NoError(t, err)

	var got collector
	_, err = l.Run(context.Background(), got.emit)
	require.NoError(t, err)
	assert.Len(t, got.events, 2)
}

func TestLaunchIsExclusivePerOperator(t *testing.T) {
	f := newCampaignFixture()
	f.upload(t, "phone\n5551234567\n")
	ctx := context.Background()

	first, err := f.svc.PrepareLaunch(ctx, f.key, f.input())
	require.NoError(t, err)

	_, err = f.svc.PrepareLaunch(ctx, f.key, f.input())
	assert.ErrorIs(t, err, domain.ErrLaunchInProgress)

	var got collector
	_, err = first.Run(ctx, got.emit)
	require.NoError(t, err)

	again, err := f.svc.PrepareLaunch(ctx, f.key, f.input())
	require.NoError(t, err)
	again.Close()
	again.Close()
}

func TestLaunchMissingPhoneColumnSkipsEveryRow(t *testing.T) {
	f := newCampaignFixture()
	f.upload(t, "mobile,name\n5551234567,Ann\n5557654321,Bob\n")

	l, err := f.svc.PrepareLaunch(context.Background(), f.key, f.input())
	require.NoError(t, err)

	var got collector
	counters, err := l.Run(context.Background(), got.emit)
	require.NoError(t, err)
	assert.Equal(t, domain.Counters{Skipped: 2}, counters)
	assert.Empty(t, f.sender.sent)
}

func TestLaunchDelay(t *testing.T) {
	cases := map[string]struct {
		ms   *int
		want time.Duration
	}{
		"default":  {nil, time.Second},
		"explicit": {intPtr(250), 250 * time.Millisecond},
		"zero":     {intPtr(0), 0},
		"negative": {intPtr(-5), 0},
		"clamped":  {intPtr(10 * 60 * 1000), time.Minute},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newCampaignFixture()
			f.upload(t, "phone\n5551234567\n")

			in := f.input()
			in.DelayMS = tc.ms
			l, err := f.svc.PrepareLaunch(context.Background(), f.key, in)
			require.NoError(t, err)

			var got collector
			_, err = l.Run(context.Background(), got.emit)
			require.NoError(t, err)
			assert.Equal(t, []time.Duration{tc.want}, f.sleeper.calls)
		})
	}
}

func TestListChannelsApprovedOnly(t *testing.T) {
	f := newCampaignFixture()
	f.channels.channels[uuid.New()] = &domain.Channel{ID: uuid.New(), TenantID: uuid.New(), Name: "other tenant"}

	out, err := f.svc.ListChannels(context.Background(), f.key.TenantID)
	require.NoError(t, err)
	require.Len(t, out, 1)

	ch := out[0]
	assert.Equal(t, f.channel.ID, ch.ID)
	assert.Equal(t, domain.AccountActive, ch.AccountStatus)
	require.Len(t, ch.Templates, 2)

	promo := ch.Templates[0]
	assert.Equal(t, "promo", promo.Name)
	assert.Equal(t, "Hi {{1}}, use code {{2}}", promo.BodyText)
	assert.Equal(t, []string{"1", "2"}, promo.BodyVariables)
	assert.Equal(t, "welcome", ch.Templates[1].Name)
	assert.Empty(t, ch.Templates[1].BodyVariables)
}
