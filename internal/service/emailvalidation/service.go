package emailvalidation

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	applog "github.com/janisto/citizen-profiles/internal/platform/logging"
	"github.com/janisto/citizen-profiles/internal/platform/timeutil"
)

// Input is the input of the email validation saga.
type Input struct {
	Email      string `json:"email"`
	FiscalCode string `json:"fiscalCode"`
}

// Validate reports a missing fiscal code or a malformed address.
func (in Input) Validate() error {
	if strings.TrimSpace(in.FiscalCode) == "" {
		return errors.New("fiscal code is required")
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil {
		return fmt.Errorf("invalid email: %w", err)
	}
	if addr.Address != in.Email {
		return fmt.Errorf("invalid email %q", in.Email)
	}
	return nil
}

// CreatedToken is the result of CreateToken. Validator is the secret half
// of the token and is never stored.
type CreatedToken struct {
	TokenID   string `json:"tokenId"`
	Validator string `json:"validator"`
}

// Token returns the "<tokenId>:<validator>" form sent to the citizen.
func (c CreatedToken) Token() string {
	return FormatToken(c.TokenID, c.Validator)
}

// Service creates, delivers and consumes validation tokens.
type Service struct {
	tokens      TokenStore
	mailer      Mailer
	callbackURL string
	ttl         time.Duration
	now         timeutil.Clock
}

// Option configures a Service.
type Option func(*Service)

// WithCallbackURL sets the confirmation endpoint put in the email link.
func WithCallbackURL(u string) Option {
	return func(s *Service) { s.callbackURL = u }
}

// WithTokenTTL sets how long a token stays valid.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock replaces the clock used for token expiry.
func WithClock(c timeutil.Clock) Option {
	return func(s *Service) { s.now = c }
}

// NewService creates a Service. Tokens last 30 days unless WithTokenTTL is given.
func NewService(tokens TokenStore, mailer Mailer, opts ...Option) *Service {
	s := &Service{
		tokens: tokens,
		mailer: mailer,
		ttl:    30 * 24 * time.Hour,
		now:    timeutil.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateToken stores a new token for in and returns its id and validator.
func (s *Service) CreateToken(ctx context.Context, in Input) (CreatedToken, error) {
	validator, err := newValidator()
	if err != nil {
		return CreatedToken{}, fmt.Errorf("generate validator: %w", err)
	}
	rec := Record{
		ID:            uuid.NewString(),
		FiscalCode:    in.FiscalCode,
		Email:         in.Email,
		ValidatorHash: hashValidator(validator),
		ExpiresAt:     s.now().Add(s.ttl),
	}
	if err := s.tokens.Save(ctx, rec); err != nil {
		return CreatedToken{}, fmt.Errorf("save validation token: %w", err)
	}
	applog.LoggerFromContext(ctx).Debug("validation token created",
		applog.Subject(in.FiscalCode),
		zap.String("tokenId", rec.ID),
	)
	return CreatedToken{TokenID: rec.ID, Validator: validator}, nil
}

// Link returns the confirmation URL carrying token.
func (s *Service) Link(token string) (string, error) {
	u, err := url.Parse(s.callbackURL)
	if err != nil {
		return "", fmt.Errorf("parse callback URL: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SendEmail mails the confirmation link for token to email.
func (s *Service) SendEmail(ctx context.Context, email, token string) error {
	link, err := s.Link(token)
	if err != nil {
		return err
	}
	body := "Please confirm your email address by opening the link below.\r\n\r\n" +
		link + "\r\n\r\n" +
		"If you did not request this, ignore this message.\r\n"
	if err := s.mailer.Send(ctx, Message{
		To:      email,
		Subject: "Confirm your email address",
		Body:    body,
	}); err != nil {
		return fmt.Errorf("send validation email: %w", err)
	}
	return nil
}

// Verify checks token against the stored hash without using it up. It
// returns the email and fiscal code the token was issued for. An expired
// token is removed.
func (s *Service) Verify(ctx context.Context, token string) (Input, error) {
	id, validator, err := ParseToken(token)
	if err != nil {
		return Input{}, err
	}
	rec, err := s.tokens.Get(ctx, id)
	if errors.Is(err, ErrTokenNotFound) {
		return Input{}, ErrInvalidToken
	}
	if err != nil {
		return Input{}, fmt.Errorf("load validation token: %w", err)
	}
	if !validatorMatches(rec, validator) {
		return Input{}, ErrInvalidToken
	}
	if !s.now().Before(rec.ExpiresAt) {
		_, _ = s.tokens.Delete(ctx, id)
		return Input{}, ErrTokenExpired
	}
	return Input{Email: rec.Email, FiscalCode: rec.FiscalCode}, nil
}

// Redeem deletes a verified token. It returns ErrInvalidToken when the token
// was already redeemed, including by a concurrent caller.
func (s *Service) Redeem(ctx context.Context, token string) error {
	id, _, err := ParseToken(token)
	if err != nil {
		return err
	}
	removed, err := s.tokens.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete validation token: %w", err)
	}
	if !removed {
		return ErrInvalidToken
	}
	return nil
}

// Consume verifies and redeems token in one call.
func (s *Service) Consume(ctx context.Context, token string) (Input, error) {
	in, err := s.Verify(ctx, token)
	if err != nil {
		return Input{}, err
	}
	if err := s.Redeem(ctx, token); err != nil {
		return Input{}, err
	}
	return in, nil
}
