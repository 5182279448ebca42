// Package smtpserver receives forwarded confirmation emails over SMTP.
//
// Users forward airline emails to {username}@{domain}; the server
// resolves the user from the recipient address, unwraps the forwarding
// wrapper, and feeds the original message through the same extraction
// pipeline the mailbox poller uses.
package smtpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/flight-tracker/internal/mail"
	"github.com/nhle/flight-tracker/internal/model"
	"github.com/nhle/flight-tracker/internal/store"
	synclib "github.com/nhle/flight-tracker/internal/sync"
)

// processTimeout bounds handling of a single delivered message.
const processTimeout = 30 * time.Second

var (
	errUnknownDomain = &smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 1, 2},
		Message:      "Unknown domain",
	}
	errUnknownUser = &smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 1, 1},
		Message:      "Unknown user",
	}
	errInvalidAddress = &smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 1, 3},
		Message:      "Invalid address",
	}
)

// Backend creates sessions that deliver into the flight pipeline.
type Backend struct {
	store        store.Store
	orchestrator *synclib.Orchestrator
	domain       string
	logger       *zap.Logger
}

// NewBackend creates the SMTP backend. domain is the ingestion domain
// users forward to; recipients outside it are rejected.
func NewBackend(st store.Store, orch *synclib.Orchestrator, domain string, logger *zap.Logger) *Backend {
	return &Backend{
		store:        st,
		orchestrator: orch,
		domain:       domain,
		logger:       logger,
	}
}

// NewSession implements smtp.Backend.
func (b *Backend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &session{backend: b}, nil
}

// NewServer builds a configured go-smtp server around the backend.
func NewServer(b *Backend, addr string) *smtp.Server {
	s := smtp.NewServer(b)
	s.Addr = addr
	s.Domain = b.domain
	s.ReadTimeout = time.Minute
	s.WriteTimeout = time.Minute
	s.MaxMessageBytes = 10 * 1024 * 1024
	s.MaxRecipients = 10
	return s
}

// session handles one SMTP transaction. Recipient validation happens
// at RCPT time so misdirected mail is rejected at the protocol level
// instead of silently dropped.
type session struct {
	backend *Backend
	users   []*model.User
}

func (s *session) Mail(_ string, _ *smtp.MailOptions) error {
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	b := s.backend
	if b.domain == "" {
		b.logger.Error("SMTP ingestion domain not configured")
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 3, 5},
			Message:      "Service not configured",
		}
	}

	at := strings.LastIndex(to, "@")
	if at < 1 {
		return errInvalidAddress
	}
	localPart, addrDomain := to[:at], to[at+1:]

	if !strings.EqualFold(addrDomain, b.domain) {
		return errUnknownDomain
	}

	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	user, err := b.store.GetUserByUsername(ctx, localPart)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errUnknownUser
		}
		return fmt.Errorf("resolving recipient %s: %w", to, err)
	}

	s.users = append(s.users, user)
	return nil
}

// Data parses the delivered message and processes it for every
// accepted recipient. Processing is best effort: once the recipients
// passed RCPT validation the message is accepted, and extraction
// failures are logged rather than bounced back to the forwarder.
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading message data: %w", err)
	}

	for _, user := range s.users {
		s.deliverTo(user, raw)
	}

	return nil
}

// deliverTo processes the message for one recipient. A panic while
// extracting one message must not take down the listener.
func (s *session) deliverTo(user *model.User, raw []byte) {
	b := s.backend
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic processing forwarded email",
				zap.String("user", user.Username), zap.Any("panic", r))
		}
	}()

	msg := prepareMessage(raw)

	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	res, err := b.orchestrator.ProcessMessage(ctx, user.ID, nil, msg)
	if err != nil {
		b.logger.Warn("processing forwarded email failed",
			zap.String("user", user.Username), zap.Error(err))
		return
	}

	if res.FlightsCreated > 0 {
		if _, gerr := b.orchestrator.Group(ctx, user.ID); gerr != nil {
			b.logger.Warn("grouping after forwarded email failed",
				zap.String("user", user.Username), zap.Error(gerr))
		}
	}

	b.logger.Info("forwarded email processed",
		zap.String("user", user.Username),
		zap.String("sender", msg.Sender),
		zap.Bool("matched", res.Matched),
		zap.Int("flights", res.FlightsCreated),
		zap.Int("duplicates", res.Duplicates))
}

func (s *session) Reset() {
	s.users = nil
}

func (s *session) Logout() error {
	return nil
}

// prepareMessage parses the raw delivery and, when it is a forward,
// swaps in the original sender, subject, and body so airline matching
// sees the airline rather than the forwarding user.
func prepareMessage(raw []byte) *mail.NormalizedMessage {
	msg := mail.ParseMessage(raw)
	if msg.MessageID == "" {
		msg.MessageID = "smtp-fwd-" + uuid.NewString()
	}

	sender, subject, body, forwarded := unwrapForwarded(msg.Body())
	if !forwarded {
		return msg
	}

	if sender != "" {
		msg.Sender = sender
	}
	if subject != "" {
		msg.Subject = subject
	}
	// Unwrapped text replaces both parts so patterns do not match the
	// wrapper headers. The raw HTML part stays available for the
	// structured extractors.
	msg.PlainBody = body
	msg.HTMLText = ""

	return msg
}
