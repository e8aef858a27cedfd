package livesync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	changefeed "github.com/smallbiznis/condopay/internal/changefeed/domain"
	"github.com/smallbiznis/condopay/internal/changefeed/hub"
	"github.com/smallbiznis/condopay/internal/config"
	contributiondomain "github.com/smallbiznis/condopay/internal/contribution/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const condo = snowflake.ID(1001)

type reportFunc func(ctx context.Context, call int) (contributiondomain.Snapshot, error)

type fakeContributions struct {
	mu       sync.Mutex
	calls    int
	triggers []string
	fn       reportFunc
}

func (f *fakeContributions) GetReport(ctx context.Context, condominiumID snowflake.ID, year int) (contributiondomain.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.triggers = append(f.triggers, contributiondomain.TriggerFromContext(ctx))
	fn := f.fn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, call)
	}
	return okSnapshot(call), nil
}

func (f *fakeContributions) GetResidentOverview(context.Context, snowflake.ID, int) (contributiondomain.ResidentOverview, error) {
	return contributiondomain.ResidentOverview{}, nil
}

func (f *fakeContributions) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeContributions) Triggers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.triggers...)
}

func okSnapshot(call int) contributiondomain.Snapshot {
	return contributiondomain.Snapshot{
		Report: contributiondomain.Report{
			CondominiumID: condo,
			Year:          2024,
			Rows:          []contributiondomain.Row{},
		},
		Generation:  uint64(call),
		GeneratedAt: time.Date(2024, 7, 1, 12, 0, call, 0, time.UTC),
	}
}

type failingFeed struct{}

func (failingFeed) Subscribe(context.Context, changefeed.Filter) (changefeed.Subscription, error) {
	return nil, changefeed.ErrFeedUnavailable
}

func newTestController(svc contributiondomain.Service, feed changefeed.Feed, debounce time.Duration) *Controller {
	cfg := config.DefaultReconcileConfig()
	cfg.Debounce = debounce
	return NewController(Params{
		Log:           zap.NewNop(),
		Contributions: svc,
		Feed:          feed,
		Config:        config.NewStaticReconcileConfigHolder(cfg),
	})
}

func waitUpdate(t *testing.T, ch <-chan Update, match func(Update) bool) Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			require.True(t, ok, "update channel closed")
			if match(u) {
				return u
			}
		case <-deadline:
			t.Fatal("timed out waiting for update")
			return Update{}
		}
	}
}

func publishPayment(t *testing.T, h *hub.Hub, row snowflake.ID) {
	t.Helper()
	require.NoError(t, h.Publish(context.Background(),
		changefeed.NewEvent(changefeed.TablePayments, changefeed.OpInsert, condo, row, time.Now())))
}

func TestActivateRejectsInvalidInput(t *testing.T) {
	ctrl := newTestController(&fakeContributions{}, hub.New(), 10*time.Millisecond)

	_, err := ctrl.Activate(context.Background(), 0, 2024)
	assert.ErrorIs(t, err, ErrInvalidCondominium)

	_, err = ctrl.Activate(context.Background(), condo, 1999)
	assert.ErrorIs(t, err, ErrInvalidYear)
}

func TestActivatePublishesInitialUpdate(t *testing.T) {
	svc := &fakeContributions{}
	h := hub.New()
	ctrl := newTestController(svc, h, 10*time.Millisecond)

	s, err := ctrl.Activate(context.Background(), condo, 2024)
	require.NoError(t, err)
	defer s.Close()

	updates, cancel := s.Subscribe()
	defer cancel()

	u := waitUpdate(t, updates, func(Update) bool { return true })
	assert.Equal(t, uint64(1), u.Generation)
	assert.NoError(t, u.Err)
	assert.Equal(t, condo, u.Snapshot.CondominiumID)
	assert.Equal(t, []string{"initial"}, svc.Triggers())

	assert.Equal(t, 1, h.Subscribers(changefeed.Filter{Table: changefeed.TablePayments, CondominiumID: condo}))
	assert.Equal(t, 1, h.Subscribers(changefeed.Filter{Table: changefeed.TableResidents, CondominiumID: condo}))
}

func TestBurstOfChangesIsCoalesced(t *testing.T) {
	svc := &fakeContributions{}
	h := hub.New()
	ctrl := newTestController(svc, h, 40*time.Millisecond)

	s, err := ctrl.Activate(context.Background(), condo, 2024)
	require.NoError(t, err)
	defer s.Close()

	updates, cancel := s.Subscribe()
	defer cancel()

	for i := 0; i < 5; i++ {
		publishPayment(t, h, snowflake.ID(i+1))
	}
	require.NoError(t, h.Publish(context.Background(),
		changefeed.NewEvent(changefeed.TableResidents, changefeed.OpUpdate, condo, 9, time.Now())))

	u := waitUpdate(t, updates, func(u Update) bool { return u.Generation == 2 })
	assert.NoError(t, u.Err)

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 2, svc.Calls())
	assert.Equal(t, []string{"initial", "feed"}, svc.Triggers())
}

func TestWriteDuringInitialFetchTriggersRecompute(t *testing.T) {
	h := hub.New()
	svc := &fakeContributions{}
	svc.fn = func(_ context.Context, call int) (contributiondomain.Snapshot, error) {
		if call == 1 {
			publishPayment(t, h, 77)
		}
		return okSnapshot(call), nil
	}
	ctrl := newTestController(svc, h, 10*time.Millisecond)

	s, err := ctrl.Activate(context.Background(), condo, 2024)
	require.NoError(t, err)
	defer s.Close()

	updates, cancel := s.Subscribe()
	defer cancel()

	u := waitUpdate(t, updates, func(u Update) bool { return u.Generation == 2 })
	assert.NoError(t, u.Err)
	assert.Equal(t, []string{"initial", "feed"}, svc.Triggers())
}

func TestFinishedRecomputeReleasesItsContext(t *testing.T) {
	var (
		mu   sync.Mutex
		ctxs = map[int]context.Context{}
	)
	svc := &fakeContributions{fn: func(ctx context.Context, call int) (contributiondomain.Snapshot, error) {
		mu.Lock()
		ctxs[call] = ctx
		mu.Unlock()
		return okSnapshot(call), nil
	}}
	ctrl := newTestController(svc, hub.New(), time.Hour)

	s, err := ctrl.Activate(context.Background(), condo, 2024)
	require.NoError(t, err)
	defer s.Close()

	updates, cancel := s.Subscribe()
	defer cancel()
	waitUpdate(t, updates, func(u Update) bool { return u.Generation == 1 })

	for gen := uint64(2); gen <= 4; gen++ {
		require.NoError(t, s.Refresh())
		waitUpdate(t, updates, func(u Update) bool { return u.Generation == gen })
	}

	mu.Lock()
	defer mu.Unlock()
	for call := 2; call <= 4; call++ {
		require.Contains(t, ctxs, call)
		assert.ErrorIs(t, ctxs[call].Err(), context.Canceled, "recompute %d context still live", call)
	}
}

func TestSupersededRecomputeIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	svc := &fakeContributions{fn: func(ctx context.Context, call int) (contributiondomain.Snapshot, error) {
		if call == 2 {
			close(started)
			<-ctx.Done()
			return contributiondomain.Snapshot{}, ctx.Err()
		}
		return okSnapshot(call), nil
	}}
	ctrl := newTestController(svc, hub.New(), time.Hour)

	s, err := ctrl.Activate(context.Background(), condo, 2024)
	require.NoError(t, err)
	defer s.Close()

	updates, cancel := s.Subscribe()
	defer cancel()
	waitUpdate(t, updates, func(u Update) bool { return u.Generation == 1 })

	require.NoError(t, s.Refresh())
	<-started
	require.NoError(t, s.Refresh())

	u := waitUpdate(t, updates, func(u Update) bool {
		assert.NotEqual(t, uint64(2), u.Generation, "superseded result must not be published")
		return u.Generation == 3
	})
	assert.NoError(t, u.Err)
	assert.Equal(t, uint64(3), u.Snapshot.Generation)
	assert.Equal(t, []string{"initial", "manual", "manual"}, svc.Triggers())
}

func TestFailedRecomputeKeepsLastKnownGood(t *testing.T) {
	fetchErr := errors.New("connection refused")
	svc := &fakeContributions{fn: func(_ context.Context, call int) (contributiondomain.Snapshot, error) {
		if call == 2 {
			return contributiondomain.Snapshot{}, errors.Join(contributiondomain.ErrFetchFailed, fetchErr)
		}
		return okSnapshot(call), nil
	}}
	ctrl := newTestController(svc, hub.New(), time.Hour)

	s, err := ctrl.Activate(context.Background(), condo, 2024)
	require.NoError(t, err)
	defer s.Close()

	updates, cancel := s.Subscribe()
	defer cancel()
	first := waitUpdate(t, updates, func(u Update) bool { return u.Generation == 1 })

	require.NoError(t, s.Refresh())
	u := waitUpdate(t, updates, func(u Update) bool { return u.Generation == 2 })

	assert.ErrorIs(t, u.Err, contributiondomain.ErrFetchFailed)
	assert.True(t, u.Snapshot.Stale)
	assert.Equal(t, first.Snapshot.GeneratedAt, u.Snapshot.GeneratedAt)
	assert.Equal(t, u, s.Latest())
}

func TestInitialFailureWithoutHistoryCarriesError(t *testing.T) {
	svc := &fakeContributions{fn: func(_ context.Context, call int) (contributiondomain.Snapshot, error) {
		if call == 1 {
			return contributiondomain.Snapshot{}, contributiondomain.ErrFetchFailed
		}
		return okSnapshot(call), nil
	}}
	ctrl := newTestController(svc, hub.New(), time.Hour)

	s, err := ctrl.Activate(context.Background(), condo, 2024)
	require.NoError(t, err)
	defer s.Close()

	first := s.Latest()
	assert.ErrorIs(t, first.Err, contributiondomain.ErrFetchFailed)
	assert.True(t, first.Snapshot.GeneratedAt.IsZero())

	updates, cancel := s.Subscribe()
	defer cancel()
	require.NoError(t, s.Refresh())
	u := waitUpdate(t, updates, func(u Update) bool { return u.Generation == 2 })
	assert.NoError(t, u.Err)
	assert.False(t, u.Snapshot.Stale)
}

func TestUnavailableFeedDoesNotFailActivation(t *testing.T) {
	svc := &fakeContributions{}
	ctrl := newTestController(svc, failingFeed{}, 10*time.Millisecond)

	s, err := ctrl.Activate(context.Background(), condo, 2024)
	require.NoError(t, err)
	defer s.Close()

	updates, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Refresh())
	u := waitUpdate(t, updates, func(u Update) bool { return u.Generation == 2 })
	assert.NoError(t, u.Err)
}

func TestCloseIsIdempotentAndReleasesEverything(t *testing.T) {
	h := hub.New()
	ctrl := newTestController(&fakeContributions{}, h, 10*time.Millisecond)

	s, err := ctrl.Activate(context.Background(), condo, 2024)
	require.NoError(t, err)

	updates, cancel := s.Subscribe()
	defer cancel()
	<-updates

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, ok := <-updates
	assert.False(t, ok)

	select {
	case <-s.Done():
	default:
		t.Fatal("session loop still running")
	}
	assert.ErrorIs(t, s.Refresh(), ErrSessionClosed)
	assert.Equal(t, 0, h.Subscribers(changefeed.Filter{Table: changefeed.TablePayments, CondominiumID: condo}))

	late, _ := s.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestRegistrySharesSessionsAndClosesOnLastRelease(t *testing.T) {
	svc := &fakeContributions{}
	ctrl := newTestController(svc, hub.New(), 10*time.Millisecond)
	reg := NewRegistry(ctrl)
	defer reg.Close()

	ctx := context.Background()
	a, releaseA, err := reg.Acquire(ctx, condo, 2024)
	require.NoError(t, err)
	b, releaseB, err := reg.Acquire(ctx, condo, 2024)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, svc.Calls())
	assert.Equal(t, 1, reg.Active())

	other, releaseOther, err := reg.Acquire(ctx, condo, 2023)
	require.NoError(t, err)
	assert.NotSame(t, a, other)
	assert.Equal(t, 2, reg.Active())
	releaseOther()

	releaseA()
	releaseA()
	select {
	case <-a.Done():
		t.Fatal("session closed while still referenced")
	default:
	}

	releaseB()
	<-a.Done()
	assert.Equal(t, 0, reg.Active())
}

func TestRegistryPropagatesActivationErrors(t *testing.T) {
	reg := NewRegistry(newTestController(&fakeContributions{}, hub.New(), time.Millisecond))

	_, _, err := reg.Acquire(context.Background(), condo, 1800)
	assert.ErrorIs(t, err, ErrInvalidYear)
	assert.Equal(t, 0, reg.Active())

	require.NoError(t, reg.Close())
	_, _, err = reg.Acquire(context.Background(), condo, 2024)
	assert.ErrorIs(t, err, ErrSessionClosed)
}
