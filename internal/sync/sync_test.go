package sync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/flight-tracker/internal/grouping"
	"github.com/nhle/flight-tracker/internal/mail"
	"github.com/nhle/flight-tracker/internal/model"
	"github.com/nhle/flight-tracker/internal/rules"
	"github.com/nhle/flight-tracker/internal/store"
	"github.com/nhle/flight-tracker/internal/sync"
	"github.com/nhle/flight-tracker/tests/testutil"
)

const latamBody = `Seu itinerário de viagem

Código de reserva: ABC123

Trecho 1
16 de mar. de 2026  08:30  São Paulo  (GRU)  LA 1234
16 de mar. de 2026  12:45  Santiago   (SCL)

Trecho 2
20 de mar. de 2026  14:00  Santiago   (SCL)  LA 1235
20 de mar. de 2026  18:15  São Paulo  (GRU)
`

func latamMessage(messageID string) *mail.NormalizedMessage {
	received := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	return &mail.NormalizedMessage{
		MessageID:  messageID,
		Sender:     "info@info.latam.com",
		Subject:    "Confirmação de compra - seu itinerário",
		PlainBody:  latamBody,
		ReceivedAt: &received,
	}
}

// fakeFetcher returns canned messages and records the fetch options it
// was called with.
type fakeFetcher struct {
	msgs []*mail.NormalizedMessage
	err  error
	opts []mail.FetchOptions
}

func (f *fakeFetcher) FetchMessages(_ context.Context, opts mail.FetchOptions) ([]*mail.NormalizedMessage, error) {
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return f.msgs, nil
}

func newTestOrchestrator(t *testing.T, s *store.SQLiteStore, fetcher *fakeFetcher) *sync.Orchestrator {
	t.Helper()
	logger := zap.NewNop()
	orch := sync.NewOrchestrator(s, grouping.NewGrouper(s, logger), 500, logger)
	orch.SetFetcherFactory(func(*model.EmailAccount) sync.Fetcher { return fetcher })
	return orch
}

func newTestAccount(t *testing.T, s *store.SQLiteStore, userID string) *model.EmailAccount {
	t.Helper()
	acct, err := s.CreateAccount(context.Background(), model.EmailAccount{
		UserID:       userID,
		Name:         "personal",
		EmailAddress: "traveler@example.com",
		IMAPHost:     "imap.example.com",
		IMAPUsername: "traveler@example.com",
		IMAPPassword: "secret",
		UseTLS:       true,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("creating account: %v", err)
	}
	return acct
}

func TestSyncAccountCreatesAndGroupsFlights(t *testing.T) {
	s := testutil.NewTestStore(t)
	user := testutil.NewTestUser(t, s, "alice")
	acct := newTestAccount(t, s, user.ID)
	fetcher := &fakeFetcher{msgs: []*mail.NormalizedMessage{latamMessage("<msg-1@latam.com>")}}
	orch := newTestOrchestrator(t, s, fetcher)

	res, err := orch.SyncAccount(context.Background(), acct)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if res.MessagesFetched != 1 || res.MessagesMatched != 1 {
		t.Errorf("fetched %d matched %d, want 1/1", res.MessagesFetched, res.MessagesMatched)
	}
	if res.FlightsCreated != 2 {
		t.Fatalf("created %d flights, want 2", res.FlightsCreated)
	}

	flights, err := s.GetFlights(context.Background(), user.ID, store.FlightFilter{})
	if err != nil {
		t.Fatalf("listing flights: %v", err)
	}
	if len(flights) != 2 {
		t.Fatalf("got %d flights, want 2", len(flights))
	}
	for _, f := range flights {
		if f.GroupID == nil {
			t.Errorf("flight %s not grouped", f.FlightNumber)
		}
		if f.AccountID == nil || *f.AccountID != acct.ID {
			t.Errorf("flight %s missing account provenance", f.FlightNumber)
		}
	}

	groups, err := s.GetGroupsByUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("listing groups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if groups[0].Name != "GRU → SCL (Mar 2026) [ABC123]" {
		t.Errorf("group name %q", groups[0].Name)
	}

	synced, err := s.GetAccountByID(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("reloading account: %v", err)
	}
	if synced.LastSyncedAt == nil {
		t.Error("LastSyncedAt not recorded")
	}
	if synced.LastRulesVersion != rules.Version {
		t.Errorf("LastRulesVersion %q, want %q", synced.LastRulesVersion, rules.Version)
	}
}

func TestSyncAccountDeduplicatesOnResync(t *testing.T) {
	s := testutil.NewTestStore(t)
	user := testutil.NewTestUser(t, s, "alice")
	acct := newTestAccount(t, s, user.ID)
	fetcher := &fakeFetcher{msgs: []*mail.NormalizedMessage{latamMessage("<msg-1@latam.com>")}}
	orch := newTestOrchestrator(t, s, fetcher)

	ctx := context.Background()
	if _, err := orch.SyncAccount(ctx, acct); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	res, err := orch.SyncAccount(ctx, acct)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if res.FlightsCreated != 0 {
		t.Errorf("second sync created %d flights, want 0", res.FlightsCreated)
	}
	if res.Duplicates != 2 {
		t.Errorf("second sync saw %d duplicates, want 2", res.Duplicates)
	}

	flights, err := s.GetFlights(ctx, user.ID, store.FlightFilter{})
	if err != nil {
		t.Fatalf("listing flights: %v", err)
	}
	if len(flights) != 2 {
		t.Errorf("got %d flights after resync, want 2", len(flights))
	}
}

func TestSyncAccountRescansWhenRuleVersionChanges(t *testing.T) {
	s := testutil.NewTestStore(t)
	user := testutil.NewTestUser(t, s, "alice")
	acct := newTestAccount(t, s, user.ID)
	fetcher := &fakeFetcher{}
	orch := newTestOrchestrator(t, s, fetcher)

	ctx := context.Background()
	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.MarkSynced(ctx, acct.ID, "2020-01-1", past); err != nil {
		t.Fatalf("seeding sync state: %v", err)
	}
	acct, err := s.GetAccountByID(ctx, acct.ID)
	if err != nil {
		t.Fatalf("reloading account: %v", err)
	}

	// Stale rule version forces a full rescan.
	if _, err := orch.SyncAccount(ctx, acct); err != nil {
		t.Fatalf("rescan sync: %v", err)
	}
	if len(fetcher.opts) != 1 {
		t.Fatalf("fetcher called %d times, want 1", len(fetcher.opts))
	}
	if fetcher.opts[0].Since != nil {
		t.Errorf("rescan passed since=%v, want nil", fetcher.opts[0].Since)
	}

	// Once versions agree, syncs are incremental again.
	acct, err = s.GetAccountByID(ctx, acct.ID)
	if err != nil {
		t.Fatalf("reloading account: %v", err)
	}
	if _, err := orch.SyncAccount(ctx, acct); err != nil {
		t.Fatalf("incremental sync: %v", err)
	}
	if fetcher.opts[1].Since == nil {
		t.Error("incremental sync passed since=nil, want last sync time")
	}
}

func TestSyncAccountFetchErrorKeepsWatermark(t *testing.T) {
	s := testutil.NewTestStore(t)
	user := testutil.NewTestUser(t, s, "alice")
	acct := newTestAccount(t, s, user.ID)
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	orch := newTestOrchestrator(t, s, fetcher)

	if _, err := orch.SyncAccount(context.Background(), acct); err == nil {
		t.Fatal("expected sync error")
	}

	reloaded, err := s.GetAccountByID(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("reloading account: %v", err)
	}
	if reloaded.LastSyncedAt != nil {
		t.Errorf("watermark advanced to %v on failed fetch", reloaded.LastSyncedAt)
	}
}

func TestProcessMessageIgnoresUnmatchedSender(t *testing.T) {
	s := testutil.NewTestStore(t)
	user := testutil.NewTestUser(t, s, "alice")
	orch := newTestOrchestrator(t, s, &fakeFetcher{})

	msg := latamMessage("<msg-2@latam.com>")
	msg.Sender = "newsletter@example.com"

	res, err := orch.ProcessMessage(context.Background(), user.ID, nil, msg)
	if err != nil {
		t.Fatalf("processing: %v", err)
	}
	if res.Matched || res.FlightsCreated != 0 {
		t.Errorf("unmatched sender produced matched=%v created=%d", res.Matched, res.FlightsCreated)
	}
}
