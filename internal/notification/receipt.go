package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/frahmantamala/course-checkout/internal"
	"github.com/frahmantamala/course-checkout/internal/payment"
)

const (
	defaultHost = "https://api.sendgrid.com"
	endpoint    = "/v3/mail/send"
)

var receiptHTML = template.Must(template.New("receipt").Parse(`<p>Hi {{.LearnerName}},</p>
<p>Your payment of <strong>{{.FormattedAmount}}</strong> for <strong>{{.CourseTitle}}</strong> was successful.</p>
<table>
<tr><td>Transaction</td><td>{{.TransactionID}}</td></tr>
<tr><td>Method</td><td>{{.PaymentMethod}}</td></tr>
<tr><td>Date</td><td>{{.PaidAt.Format "02 Jan 2006 15:04 MST"}}</td></tr>
</table>
<p>You can start learning right away.</p>`))

// SendGridMailer delivers payment receipts through the SendGrid v3 API.
type SendGridMailer struct {
	key    string
	host   string
	from   *sgmail.Email
	logger *slog.Logger
}

var _ payment.ReceiptSender = (*SendGridMailer)(nil)

type Option func(*SendGridMailer)

// WithHost points the mailer at another API host.
func WithHost(host string) Option {
	return func(m *SendGridMailer) { m.host = host }
}

func NewSendGridMailer(cfg internal.EmailConfig, logger *slog.Logger, opts ...Option) *SendGridMailer {
	m := &SendGridMailer{
		key:    cfg.SendGridAPIKey,
		host:   defaultHost,
		from:   sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *SendGridMailer) prepare(r payment.Receipt) (*sgmail.SGMailV3, error) {
	var html bytes.Buffer
	if err := receiptHTML.Execute(&html, r); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}

	p := sgmail.NewPersonalization()
	p.Subject = "Payment receipt: " + r.CourseTitle
	p.AddTos(sgmail.NewEmail(r.LearnerName, r.LearnerEmail))

	msg := sgmail.NewV3Mail()
	msg.SetFrom(m.from)
	msg.AddPersonalizations(p)
	msg.AddContent(
		sgmail.NewContent("text/plain", plainReceipt(r)),
		sgmail.NewContent("text/html", html.String()),
	)
	return msg, nil
}

func (m *SendGridMailer) SendReceipt(ctx context.Context, r payment.Receipt) error {
	msg, err := m.prepare(r)
	if err != nil {
		return err
	}

	req := sendgrid.GetRequest(m.key, endpoint, m.host)
	req.Method = rest.Post
	req.Body = sgmail.GetRequestBody(msg)

	res, err := rest.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sending receipt: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		m.logger.Error("sendgrid rejected receipt", "status", res.StatusCode, "body", res.Body)
		return fmt.Errorf("sending receipt: status %d", res.StatusCode)
	}
	return nil
}

func plainReceipt(r payment.Receipt) string {
	return fmt.Sprintf("Hi %s,\n\nYour payment of %s for %s was successful.\n\nTransaction: %s\nMethod: %s\nDate: %s\n",
		r.LearnerName, r.FormattedAmount, r.CourseTitle, r.TransactionID, r.PaymentMethod,
		r.PaidAt.Format("02 Jan 2006 15:04 MST"))
}

// LogSender writes receipts to the log. Used when no SendGrid key is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendReceipt(_ context.Context, r payment.Receipt) error {
	s.logger.Info("payment receipt",
		"transaction_id", r.TransactionID,
		"course", r.CourseTitle,
		"amount", r.FormattedAmount)
	return nil
}

// NewReceiptSender picks SendGrid when a key is configured.
func NewReceiptSender(cfg internal.EmailConfig, logger *slog.Logger) payment.ReceiptSender {
	if cfg.SendGridAPIKey == "" {
		return NewLogSender(logger)
	}
	return NewSendGridMailer(cfg, logger)
}
