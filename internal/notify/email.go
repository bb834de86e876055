package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"goodwill_sniper/internal/config"
	"goodwill_sniper/internal/logbus"
)

var ErrQueueFull = errors.New("email queue full")

// EmailNotifier collects messages for a summary window and mails them as a
// single digest.
type EmailNotifier struct {
	bus  *logbus.Bus
	from string
	to   string
	send func(*gomail.Message) error

	mu     sync.Mutex
	queue  chan Message
	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup

	summaryWindow time.Duration
	maxBatch      int
}

func NewEmailNotifier(cfg config.EmailConfig, bus *logbus.Bus) (*EmailNotifier, error) {
	if err := validateEmailConfig(cfg); err != nil {
		return nil, err
	}
	user := strings.TrimSpace(cfg.Username)
	host, port, useSSL := strings.TrimSpace(cfg.Host), cfg.Port, true
	if host == "" {
		var err error
		if host, port, useSSL, err = smtpConfigForEmail(user); err != nil {
			return nil, err
		}
	}
	if port <= 0 {
		port = 465
	}
	if cfg.SSL != nil {
		useSSL = *cfg.SSL
	}
	d := gomail.NewDialer(host, port, user, cfg.Password)
	d.SSL = useSSL
	return newEmailNotifier(cfg, bus, func(m *gomail.Message) error { return d.DialAndSend(m) }), nil
}

func newEmailNotifier(cfg config.EmailConfig, bus *logbus.Bus, send func(*gomail.Message) error) *EmailNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = strings.TrimSpace(cfg.Username)
	}
	to := strings.TrimSpace(cfg.To)
	if to == "" {
		to = strings.TrimSpace(cfg.Username)
	}
	n := &EmailNotifier{
		bus:           bus,
		from:          from,
		to:            to,
		send:          send,
		queue:         make(chan Message, 200),
		ctx:           ctx,
		cancel:        cancel,
		summaryWindow: cfg.SummaryWindow(),
		maxBatch:      80,
	}
	n.wg.Add(1)
	go n.loop()
	return n
}

// Close flushes pending messages and stops the batching goroutine.
func (n *EmailNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *EmailNotifier) Notify(_ context.Context, msg Message) error {
	select {
	case n.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (n *EmailNotifier) loop() {
	defer n.wg.Done()

	var (
		pending []Message
		timer   *time.Timer
		timerCh <-chan time.Time
	)

	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
		timerCh = nil
	}

	resetTimer := func() {
		if n.summaryWindow <= 0 {
			return
		}
		if timer == nil {
			timer = time.NewTimer(n.summaryWindow)
			timerCh = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(n.summaryWindow)
	}

	flush := func(reason string) {
		if len(pending) == 0 {
			stopTimer()
			return
		}
		batch := append([]Message(nil), pending...)
		pending = pending[:0]
		stopTimer()
		n.handleBatch(reason, batch)
	}

	for {
		select {
		case <-n.ctx.Done():
			// drain what was queued before shutdown
			for {
				select {
				case msg := <-n.queue:
					pending = append(pending, msg)
					continue
				default:
				}
				break
			}
			flush("shutdown")
			return
		case msg := <-n.queue:
			pending = append(pending, msg)
			if n.maxBatch > 0 && len(pending) >= n.maxBatch {
				flush("max")
				continue
			}
			if n.summaryWindow <= 0 {
				flush("immediate")
				continue
			}
			resetTimer()
		case <-timerCh:
			flush("idle")
		}
	}
}

func (n *EmailNotifier) handleBatch(reason string, batch []Message) {
	subject, htmlBody, textBody, err := buildDigest(batch)
	if err != nil {
		n.log("warn", "email digest build failed", map[string]any{"error": err.Error()})
		return
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(n.from, "Goodwill Sniper"))
	msg.SetHeader("To", n.to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	if err := n.send(msg); err != nil {
		n.log("warn", "email send failed", map[string]any{
			"error":  err.Error(),
			"count":  len(batch),
			"reason": reason,
		})
		return
	}
	n.log("info", "email digest sent", map[string]any{
		"count":  len(batch),
		"reason": reason,
		"to":     n.to,
	})
}

func (n *EmailNotifier) log(level, msg string, fields map[string]any) {
	if n.bus != nil {
		n.bus.Log(level, msg, fields)
	}
}

func validateEmailConfig(c config.EmailConfig) error {
	user := strings.TrimSpace(c.Username)
	if user == "" {
		return errors.New("email username is required")
	}
	if strings.TrimSpace(c.Password) == "" {
		return errors.New("email password is required")
	}
	to := strings.TrimSpace(c.To)
	if to == "" {
		to = user
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return fmt.Errorf("invalid recipient %q", to)
	}
	return nil
}

// smtpConfigForEmail guesses the SMTP server of well-known mail providers.
func smtpConfigForEmail(email string) (host string, port int, useSSL bool, err error) {
	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return "", 0, false, errors.New("invalid email format")
	}
	domain := strings.ToLower(strings.TrimSpace(parts[1]))

	switch {
	case domain == "gmail.com" || domain == "googlemail.com":
		return "smtp.gmail.com", 587, false, nil
	case domain == "outlook.com" || domain == "hotmail.com" || domain == "live.com" || domain == "msn.com":
		return "smtp.office365.com", 587, false, nil
	case domain == "yahoo.com" || strings.HasPrefix(domain, "yahoo."):
		return "smtp.mail.yahoo.com", 465, true, nil
	case domain == "icloud.com" || domain == "me.com" || domain == "mac.com":
		return "smtp.mail.me.com", 587, false, nil
	case domain == "fastmail.com" || domain == "fastmail.fm":
		return "smtp.fastmail.com", 465, true, nil
	case domain == "aol.com":
		return "smtp.aol.com", 465, true, nil
	default:
		return "smtp." + domain, 465, true, nil
	}
}

var digestHTMLTpl = template.Must(template.New("digest").Parse(`
<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width" />
    <title>{{ .Subject }}</title>
  </head>
  <body style="margin:0;padding:0;background:#f6f8fb;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Arial,sans-serif;">
    <div style="max-width:720px;margin:0 auto;padding:24px;">
      <div style="background:#ffffff;border:1px solid #e6e8ef;border-radius:14px;overflow:hidden;">
        <div style="padding:18px 22px;background:linear-gradient(135deg,#0ea5e9,#6366f1);color:#ffffff;">
          <div style="font-size:16px;font-weight:700;">{{ .Subject }}</div>
          <div style="margin-top:6px;font-size:12px;opacity:.95;">{{ .Start }} to {{ .End }}</div>
        </div>
        <div style="padding:22px;">
          <table role="presentation" cellspacing="0" cellpadding="0" border="0" style="width:100%;border-collapse:collapse;">
            <thead>
              <tr style="background:#fafbff;">
                <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;border-bottom:1px solid #eef0f6;">Time</th>
                <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;border-bottom:1px solid #eef0f6;">Kind</th>
                <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;border-bottom:1px solid #eef0f6;">Message</th>
              </tr>
            </thead>
            <tbody>
              {{ range .Rows }}
              <tr>
                <td style="padding:10px 12px;font-size:12px;color:#111827;border-bottom:1px solid #eef0f6;">{{ .At }}</td>
                <td style="padding:10px 12px;font-size:12px;color:#111827;border-bottom:1px solid #eef0f6;">{{ .Kind }}</td>
                <td style="padding:10px 12px;font-size:12px;color:#111827;border-bottom:1px solid #eef0f6;">{{ .Text }}</td>
              </tr>
              {{ end }}
            </tbody>
          </table>
        </div>
      </div>
    </div>
  </body>
</html>
`))

type digestRow struct {
	At   string
	Kind string
	Text string
}

func buildDigest(batch []Message) (subject, htmlBody, textBody string, err error) {
	if len(batch) == 0 {
		return "", "", "", errors.New("no messages")
	}

	var minAt, maxAt time.Time
	rows := make([]digestRow, 0, len(batch))
	bids := 0
	for i, m := range batch {
		at := m.At
		if at.IsZero() {
			at = time.Now()
		}
		if i == 0 || at.Before(minAt) {
			minAt = at
		}
		if i == 0 || at.After(maxAt) {
			maxAt = at
		}
		if m.Kind == KindBid {
			bids++
		}
		rows = append(rows, digestRow{
			At:   at.Local().Format("2006-01-02 15:04:05"),
			Kind: string(m.Kind),
			Text: m.Text(),
		})
	}

	if len(batch) == 1 {
		subject = batch[0].Title
	}
	if subject == "" {
		subject = fmt.Sprintf("Goodwill sniper: %d updates", len(batch))
		if bids > 0 {
			subject = fmt.Sprintf("Goodwill sniper: %d updates, %d bids", len(batch), bids)
		}
	}

	data := struct {
		Subject string
		Start   string
		End     string
		Rows    []digestRow
	}{
		Subject: subject,
		Start:   minAt.Local().Format("2006-01-02 15:04:05"),
		End:     maxAt.Local().Format("2006-01-02 15:04:05"),
		Rows:    rows,
	}

	var buf bytes.Buffer
	if err := digestHTMLTpl.Execute(&buf, data); err != nil {
		return "", "", "", err
	}

	text := new(strings.Builder)
	text.WriteString(subject + "\n")
	for _, r := range rows {
		fmt.Fprintf(text, "- %s [%s] %s\n", r.At, r.Kind, r.Text)
	}
	return subject, buf.String(), text.String(), nil
}
