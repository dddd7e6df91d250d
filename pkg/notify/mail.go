package notify

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/wneessen/go-mail"
)

// Sender delivers messages. *mail.Client is a Sender.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type SMTPConfig struct {
	Host string
	Port int
	From string

	// Username and Password enable SMTP AUTH PLAIN, when Username is not empty.
	Username string
	Password string

	// TLS requires STARTTLS. Otherwise, TLS is used opportunistically.
	TLS bool
}

// Mail sends events as e-mails to the recipients.
type Mail struct {
	sender Sender
	from   string

	reportsURL string
	serviceURL string

	logger *log.Logger
}

type MailOption func(*Mail) *Mail

func WithSender(s Sender) MailOption {
	return func(m *Mail) *Mail {
		m.sender = s
		return m
	}
}

func WithLogger(logger *log.Logger) MailOption {
	return func(m *Mail) *Mail {
		m.logger = logger
		return m
	}
}

// NewMail creates a Mail notifier.
//
// reportsURL is where published reports are browsed, and serviceURL is the UI of this service.
func NewMail(conf SMTPConfig, reportsURL, serviceURL string, options ...MailOption) (*Mail, error) {
	discard := log.New("notify")
	discard.SetOutput(io.Discard)

	m := &Mail{
		from:       conf.From,
		reportsURL: reportsURL,
		serviceURL: serviceURL,
		logger:     discard,
	}
	for _, o := range options {
		m = o(m)
	}

	if m.sender == nil {
		policy := mail.TLSOpportunistic
		if conf.TLS {
			policy = mail.TLSMandatory
		}
		opts := []mail.Option{mail.WithPort(conf.Port), mail.WithTLSPolicy(policy)}
		if conf.Username != "" {
			opts = append(
				opts,
				mail.WithSMTPAuth(mail.SMTPAuthPlain),
				mail.WithUsername(conf.Username),
				mail.WithPassword(conf.Password),
			)
		}
		c, err := mail.NewClient(conf.Host, opts...)
		if err != nil {
			return nil, err
		}
		m.sender = c
	}
	return m, nil
}

// Message composes an e-mail for the event.
func (m *Mail) Message(ev Event) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, err
	}
	if err := msg.To(ev.Recipient.Email); err != nil {
		return nil, err
	}
	msg.Subject(fmt.Sprintf("RelMon %s is %s", ev.RelMon.Name, ev.Kind))

	q := url.Values{"q": []string{ev.RelMon.Name}}.Encode()
	body := new(strings.Builder)
	fmt.Fprintf(body, "Hello %s,\n\n", ev.Recipient.Fullname)
	switch ev.Kind {
	case Done:
		fmt.Fprintf(body, "RelMon %s is done.\n", ev.RelMon.Name)
		fmt.Fprintf(body, "Reports: %s?%s\n", m.reportsURL, q)
	case Failed:
		fmt.Fprintf(body, "RelMon %s has failed.\n", ev.RelMon.Name)
	case Reset:
		by := ev.By.Fullname
		if by == "" {
			by = ev.By.Login
		}
		fmt.Fprintf(body, "RelMon %s was reset by %s.\n", ev.RelMon.Name, by)
	}
	fmt.Fprintf(body, "RelMon service: %s?%s\n", m.serviceURL, q)
	if ev.Attachment != "" {
		body.WriteString("\nLogs of the job are attached.\n")
	}
	msg.SetBodyString(mail.TypeTextPlain, body.String())

	if ev.Attachment != "" {
		msg.AttachFile(ev.Attachment)
	}
	return msg, nil
}

func (m *Mail) Notify(ctx context.Context, ev Event) error {
	if ev.Recipient.Email == "" {
		m.logger.Warnf("%s has no recipient for %s", ev.RelMon, ev.Kind)
		return nil
	}
	msg, err := m.Message(ev)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotifyFailed, err)
	}
	if err := m.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrNotifyFailed, err)
	}
	m.logger.Infof("sent %s notification of %s to %s", ev.Kind, ev.RelMon, ev.Recipient.Email)
	return nil
}
