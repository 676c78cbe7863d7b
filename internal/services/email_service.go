package services

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// EmailService sends transactional mail over SMTP. When no host is
// configured every send is a logged no-op so local development works without
// a mail server.
type EmailService struct {
	host     string
	port     string
	username string
	password string
	from     string
}

func NewEmailService(host, port, username, password, from string) *EmailService {
	return &EmailService{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// Send delivers a single HTML email.
func (s *EmailService) Send(to, subject, htmlBody string) error {
	if s.host == "" {
		log.Printf("[Email] SMTP not configured, skipping %q to %s", subject, to)
		return nil
	}

	msg := strings.Builder{}
	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	addr := s.host + ":" + s.port
	if err := smtp.SendMail(addr, auth, s.from, []string{to}, []byte(msg.String())); err != nil {
		log.Printf("[Email] failed to send %q to %s: %v", subject, to, err)
		return err
	}

	return nil
}

// OrderConfirmation carries the order summary rendered into the
// confirmation email.
type OrderConfirmation struct {
	OrderNumber string
	Email       string
	Items       []OrderConfirmationItem
	TotalAmount float64
	Currency    string
	Shipping    ShippingAddress
}

// OrderConfirmationItem is one rendered line item.
type OrderConfirmationItem struct {
	Name      string
	Quantity  int
	UnitPrice float64
}

// SendOrderConfirmation renders and sends the order summary. Failures are
// logged and returned but callers treat them as best-effort.
func (s *EmailService) SendOrderConfirmation(conf OrderConfirmation) error {
	var items strings.Builder
	for _, item := range conf.Items {
		items.WriteString(fmt.Sprintf(
			"<tr><td>%s</td><td>%d</td><td>%s</td><td>%s</td></tr>",
			item.Name,
			item.Quantity,
			FormatAmount(item.UnitPrice, conf.Currency),
			FormatAmount(item.UnitPrice*float64(item.Quantity), conf.Currency),
		))
	}

	var shipping string
	if !conf.Shipping.IsZero() {
		lines := []string{conf.Shipping.Name, conf.Shipping.Line1}
		if conf.Shipping.Line2 != "" {
			lines = append(lines, conf.Shipping.Line2)
		}
		lines = append(lines, fmt.Sprintf("%s, %s %s", conf.Shipping.City, conf.Shipping.State, conf.Shipping.PostalCode), conf.Shipping.Country)
		shipping = fmt.Sprintf("<h3>Shipping to</h3><p>%s</p>", strings.Join(lines, "<br>"))
	}

	body := fmt.Sprintf(`<h2>Thanks for your order!</h2>
<p>Order <strong>%s</strong> is confirmed.</p>
<table border="0" cellpadding="6">
<tr><th>Item</th><th>Qty</th><th>Price</th><th>Total</th></tr>
%s
</table>
<p><strong>Total: %s</strong></p>
%s`,
		conf.OrderNumber,
		items.String(),
		FormatAmount(conf.TotalAmount, conf.Currency),
		shipping,
	)

	return s.Send(conf.Email, fmt.Sprintf("Order confirmation %s", conf.OrderNumber), body)
}

// SendMagicLink emails a single-use sign-in link.
func (s *EmailService) SendMagicLink(to, link string) error {
	body := fmt.Sprintf(`<h2>Sign in to Verdant</h2>
<p><a href="%s">Click here to sign in</a>. The link expires in 15 minutes and can be used once.</p>`, link)

	return s.Send(to, "Your sign-in link", body)
}

// SendPasswordReset emails the reset verification code.
func (s *EmailService) SendPasswordReset(to, code string) error {
	body := fmt.Sprintf(`<h2>Password reset</h2>
<p>Your verification code is <strong>%s</strong>. It expires in 10 minutes.</p>`, code)

	return s.Send(to, "Password reset code", body)
}

// FormatAmount renders a price with its currency code.
func FormatAmount(amount float64, currency string) string {
	if currency == "" {
		currency = "usd"
	}
	return fmt.Sprintf("%.2f %s", amount, strings.ToUpper(currency))
}
