// Package sync fetches confirmation emails for connected accounts and
// runs them through the extraction pipeline.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/flight-tracker/internal/extract"
	"github.com/nhle/flight-tracker/internal/grouping"
	"github.com/nhle/flight-tracker/internal/mail"
	"github.com/nhle/flight-tracker/internal/model"
	"github.com/nhle/flight-tracker/internal/rules"
	"github.com/nhle/flight-tracker/internal/store"
)

// Fetcher retrieves normalized messages from one mailbox.
type Fetcher interface {
	FetchMessages(ctx context.Context, opts mail.FetchOptions) ([]*mail.NormalizedMessage, error)
}

// FetcherFactory builds a Fetcher for an account. The default factory
// returns an IMAP client; tests substitute an in-memory one.
type FetcherFactory func(acct *model.EmailAccount) Fetcher

func defaultFetcherFactory(acct *model.EmailAccount) Fetcher {
	return mail.NewIMAPClient(acct.IMAPHost, acct.IMAPPort, acct.IMAPUsername, acct.IMAPPassword, acct.UseTLS)
}

// Result summarizes one account sync.
type Result struct {
	MessagesFetched int
	MessagesMatched int
	FlightsCreated  int
	Duplicates      int
}

// Orchestrator runs the email-to-flight pipeline: fetch, match against
// the airline rules, extract legs, persist with deduplication, and
// regroup the user's flights.
type Orchestrator struct {
	store       store.Store
	engine      *extract.Engine
	grouper     *grouping.Grouper
	rules       []*rules.AirlineRule
	newFetcher  FetcherFactory
	maxMessages int
	logger      *zap.Logger
}

// NewOrchestrator creates an orchestrator over the built-in rule set.
func NewOrchestrator(st store.Store, grouper *grouping.Grouper, maxMessages int, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:       st,
		engine:      extract.NewEngine(logger),
		grouper:     grouper,
		rules:       rules.Builtin(),
		newFetcher:  defaultFetcherFactory,
		maxMessages: maxMessages,
		logger:      logger,
	}
}

// SetFetcherFactory overrides how mailbox fetchers are built. Used by
// tests.
func (o *Orchestrator) SetFetcherFactory(f FetcherFactory) {
	o.newFetcher = f
}

// SyncAccount fetches the account's mailbox and processes every
// returned message. Incremental syncs fetch messages since the last
// sync; an account last synced with a different rule-set version is
// rescanned from the beginning, with deduplication absorbing the
// already-known flights. The sync watermark is advanced even when no
// message yields flights.
func (o *Orchestrator) SyncAccount(ctx context.Context, acct *model.EmailAccount) (Result, error) {
	var res Result

	var since *time.Time
	if acct.LastRulesVersion == rules.Version {
		since = acct.LastSyncedAt
	} else if acct.LastSyncedAt != nil {
		o.logger.Info("rule set changed, rescanning mailbox",
			zap.String("account", acct.ID),
			zap.String("previous_version", acct.LastRulesVersion),
			zap.String("current_version", rules.Version))
	}

	// Taken before the fetch so messages arriving during the sync are
	// picked up again next time.
	syncedAt := time.Now().UTC()

	fetcher := o.newFetcher(acct)
	msgs, err := fetcher.FetchMessages(ctx, mail.FetchOptions{
		Since:          since,
		SenderPatterns: rules.SenderPatterns(o.rules),
		Max:            o.maxMessages,
	})
	if err != nil {
		return res, fmt.Errorf("fetching mailbox for account %s: %w", acct.ID, err)
	}
	res.MessagesFetched = len(msgs)

	accountID := acct.ID
	for _, msg := range msgs {
		pr, err := o.ProcessMessage(ctx, acct.UserID, &accountID, msg)
		if err != nil {
			o.logger.Warn("processing message failed",
				zap.String("account", acct.ID),
				zap.String("message_id", msg.MessageID),
				zap.Error(err))
			continue
		}
		if pr.Matched {
			res.MessagesMatched++
		}
		res.FlightsCreated += pr.FlightsCreated
		res.Duplicates += pr.Duplicates
	}

	if res.FlightsCreated > 0 {
		if _, err := o.grouper.Run(ctx, acct.UserID); err != nil {
			o.logger.Warn("grouping after sync failed",
				zap.String("user", acct.UserID), zap.Error(err))
		}
	}

	if err := o.store.MarkSynced(ctx, acct.ID, rules.Version, syncedAt); err != nil {
		return res, fmt.Errorf("marking account %s synced: %w", acct.ID, err)
	}

	return res, nil
}

// ProcessResult summarizes one processed message.
type ProcessResult struct {
	Matched        bool
	FlightsCreated int
	Duplicates     int
}

// ProcessMessage matches the message against the airline rules,
// extracts flight legs, and persists them. The deduplication key is the
// message ID combined with the flight number, so a re-fetched or
// re-forwarded confirmation never duplicates its flights. Returns
// without error when no rule matches or no legs are found.
func (o *Orchestrator) ProcessMessage(ctx context.Context, userID string, accountID *string, msg *mail.NormalizedMessage) (ProcessResult, error) {
	var res ProcessResult

	rule := rules.Match(msg, o.rules, o.logger)
	if rule == nil {
		return res, nil
	}
	res.Matched = true

	legs := o.engine.Extract(msg, rule)
	if len(legs) == 0 {
		o.logger.Debug("matched message yielded no flights",
			zap.String("airline", rule.AirlineName),
			zap.String("message_id", msg.MessageID))
		return res, nil
	}

	for _, leg := range legs {
		if !leg.Valid() {
			continue
		}

		flight := flightFromLeg(userID, accountID, msg, leg)
		if _, err := o.store.CreateFlight(ctx, flight); err != nil {
			if errors.Is(err, store.ErrDuplicateFlight) {
				res.Duplicates++
				continue
			}
			return res, fmt.Errorf("saving flight %s: %w", leg.FlightNumber, err)
		}
		res.FlightsCreated++
	}

	if res.FlightsCreated > 0 {
		o.logger.Info("flights extracted",
			zap.String("airline", rule.AirlineName),
			zap.String("message_id", msg.MessageID),
			zap.Int("flights", res.FlightsCreated),
			zap.Int("duplicates", res.Duplicates))
	}

	return res, nil
}

// Group reruns trip grouping for one user. Exposed for callers that
// process messages outside a mailbox sync, like the inbound SMTP
// server.
func (o *Orchestrator) Group(ctx context.Context, userID string) (grouping.Summary, error) {
	return o.grouper.Run(ctx, userID)
}

func flightFromLeg(userID string, accountID *string, msg *mail.NormalizedMessage, leg extract.Leg) model.Flight {
	return model.Flight{
		UserID:            userID,
		AirlineName:       leg.AirlineName,
		AirlineCode:       leg.AirlineCode,
		FlightNumber:      leg.FlightNumber,
		BookingReference:  leg.BookingReference,
		DepartureAirport:  leg.DepartureAirport,
		DepartureTime:     leg.DepartureTime,
		DepartureTerminal: leg.DepartureTerminal,
		DepartureGate:     leg.DepartureGate,
		ArrivalAirport:    leg.ArrivalAirport,
		ArrivalTime:       leg.ArrivalTime,
		ArrivalTerminal:   leg.ArrivalTerminal,
		ArrivalGate:       leg.ArrivalGate,
		PassengerName:     leg.PassengerName,
		Seat:              leg.Seat,
		CabinClass:        leg.CabinClass,
		AccountID:         accountID,
		EmailSubject:      msg.Subject,
		EmailDate:         msg.ReceivedAt,
		EmailMessageID:    fmt.Sprintf("%s:%s", msg.MessageID, leg.FlightNumber),
	}
}
