package smtpserver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.io/infrasutra/shortmail/internal/ingest"
)

const (
	defaultDomain = "shortmail"
)

type AuthConfig struct {
	Enabled  bool
	Username string
	Password string
}

// Pipeline is the ingestion step DATA hands each recipient to.
type Pipeline interface {
	Policy() ingest.Policy
	Accept(ctx context.Context, from, to string, body io.Reader) (ingest.Result, error)
}

type Server struct {
	smtp   *smtp.Server
	logger *slog.Logger
}

func New(pipeline Pipeline, logger *slog.Logger, addr string, authCfg AuthConfig) *Server {
	server := smtp.NewServer(newBackend(pipeline, logger, authCfg))
	server.Addr = addr
	server.Domain = defaultDomain
	server.AllowInsecureAuth = true
	server.ReadTimeout = 15 * time.Second
	server.WriteTimeout = 15 * time.Second
	server.MaxRecipients = 100
	server.MaxMessageBytes = 25 << 20

	return &Server{smtp: server, logger: logger}
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("smtp server listening", "addr", s.smtp.Addr)
	return s.smtp.ListenAndServe()
}

func (s *Server) Close() error {
	return s.smtp.Close()
}

type backend struct {
	pipeline     Pipeline
	logger       *slog.Logger
	authEnabled  bool
	authUsername string
	authPassword string
}

func newBackend(pipeline Pipeline, logger *slog.Logger, authCfg AuthConfig) *backend {
	return &backend{
		pipeline:     pipeline,
		logger:       logger,
		authEnabled:  authCfg.Enabled,
		authUsername: authCfg.Username,
		authPassword: authCfg.Password,
	}
}

func (b *backend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &session{backend: b}, nil
}

type session struct {
	backend       *backend
	from          string
	to            []string
	authenticated bool
}

func (s *session) AuthMechanisms() []string {
	if s.backend.authEnabled {
		return []string{sasl.Plain}
	}
	return nil
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	if !s.backend.authEnabled {
		return nil, errors.New("authentication not enabled")
	}
	if mech != sasl.Plain {
		return nil, errors.New("unsupported authentication mechanism")
	}
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username == s.backend.authUsername && password == s.backend.authPassword {
			s.authenticated = true
			return nil
		}
		return errors.New("invalid credentials")
	}), nil
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	if s.backend.authEnabled && !s.authenticated {
		return smtp.ErrAuthRequired
	}
	s.from = normalizeEmail(from)
	return nil
}

// Rcpt applies the acceptance policy early so rejected recipients never
// reach DATA.
func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	if s.backend.authEnabled && !s.authenticated {
		return smtp.ErrAuthRequired
	}
	to = normalizeEmail(to)
	if result := s.backend.pipeline.Policy().Check(s.from, to); !result.Accepted {
		return rejection(result.Reason)
	}
	s.to = append(s.to, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var rejected *smtp.SMTPError
	stored := 0
	for _, to := range s.to {
		result, err := s.backend.pipeline.Accept(ctx, s.from, to, bytes.NewReader(data))
		if err != nil {
			s.backend.logger.Error("store smtp message", "to", to, "error", err)
			return &smtp.SMTPError{
				Code:         451,
				EnhancedCode: smtp.EnhancedCode{4, 3, 0},
				Message:      "temporary storage failure",
			}
		}
		if !result.Accepted {
			rejected = rejection(result.Reason)
			continue
		}
		stored++
	}
	if stored == 0 && rejected != nil {
		return rejected
	}
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error {
	return nil
}

func rejection(reason string) *smtp.SMTPError {
	return &smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 7, 1},
		Message:      reason,
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
