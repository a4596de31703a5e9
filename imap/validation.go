package imap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
)

const (
	DefaultSubject     = "PKIChain - Domain Control Validation"
	DefaultCodePattern = `(?i)domain:\s*(\S+?)\.?\s+code:\s*([A-Za-z0-9-]+)`
	defaultInterval    = 5 * time.Second
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Mailbox  string
	Subject  string
	// CodePattern must capture the domain first and the code second.
	CodePattern string
	Interval    time.Duration
	// Mails older than the start time by less than Grace are still accepted.
	Grace time.Duration
	Debug bool
}

type ValidationCode struct {
	Code     string
	MailDate time.Time
}

func (c Config) pattern() (*regexp.Regexp, error) {
	p := c.CodePattern
	if p == "" {
		p = DefaultCodePattern
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, fmt.Errorf("invalid code pattern: %w", err)
	}
	if re.NumSubexp() < 2 {
		return nil, fmt.Errorf("code pattern needs two capture groups, got %d", re.NumSubexp())
	}
	return re, nil
}

// FetchValidationCodes waits until the mailbox holds a validation code for
// every domain and returns the newest code per domain. With no domains it
// returns whatever the first matching mails contain.
func FetchValidationCodes(ctx context.Context, cfg Config, since time.Time, domains []string) (map[string]ValidationCode, error) {
	re, err := cfg.pattern()
	if err != nil {
		return nil, err
	}
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	mailbox := cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	options := imapclient.Options{}
	if cfg.Debug {
		options.DebugWriter = os.Stderr
	}
	imapClient, err := imapclient.DialTLS(fmt.Sprintf("%s:%v", cfg.Host, cfg.Port), &options)
	if err != nil {
		return nil, err
	}
	defer imapClient.Close()
	if err := imapClient.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		return nil, fmt.Errorf("imap login failed: %w", err)
	}
	defer imapClient.Logout()

	if _, err = imapClient.Select(mailbox, nil).Wait(); err != nil {
		return nil, err
	}

	validationCodes := make(map[string]ValidationCode)
	for {
		mails, err := imapClient.Search(&imap.SearchCriteria{
			Header: []imap.SearchCriteriaHeaderField{{Key: "Subject", Value: subject}},
			Since:  since.Add(-cfg.Grace),
		}, nil).Wait()
		if err != nil {
			return nil, err
		}
		if len(mails.AllSeqNums()) == 0 {
			slog.Info("No emails found, waiting for emails")
		} else {
			fetchOptions := &imap.FetchOptions{
				Envelope:    true,
				BodySection: []*imap.FetchItemBodySection{{}},
			}
			msgs, err := imapClient.Fetch(mails.All, fetchOptions).Collect()
			if err != nil {
				return nil, err
			}
			for _, m := range msgs {
				if m.Envelope == nil {
					continue
				}
				if m.Envelope.Date.Before(since.Add(-cfg.Grace)) {
					slog.Debug("Ignoring email", slog.Time("date", m.Envelope.Date), slog.Time("since", since))
					continue
				}
				for _, section := range m.BodySection {
					for _, text := range textParts(section.Bytes) {
						mergeCodes(validationCodes, ExtractCodes(text, re, domains), m.Envelope.Date)
					}
				}
			}
			if complete(validationCodes, domains) {
				return validationCodes, nil
			}
		}
		select {
		case <-ctx.Done():
			return validationCodes, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func complete(codes map[string]ValidationCode, domains []string) bool {
	if len(domains) == 0 {
		return len(codes) > 0
	}
	for _, d := range domains {
		if _, ok := codes[d]; !ok {
			return false
		}
	}
	return true
}

func mergeCodes(dst map[string]ValidationCode, found map[string]string, date time.Time) {
	for domain, code := range found {
		if x, ok := dst[domain]; !ok || x.MailDate.Before(date) {
			dst[domain] = ValidationCode{Code: code, MailDate: date}
		}
	}
}

// textParts returns the inline bodies of a raw RFC 5322 message.
func textParts(raw []byte) []string {
	r, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		slog.Warn("Unable to parse email", slog.Any("error", err))
		return nil
	}
	var parts []string
	for {
		part, err := r.NextPart()
		if err != nil {
			break
		}
		if _, ok := part.Header.(*mail.InlineHeader); ok {
			b, _ := io.ReadAll(part.Body)
			parts = append(parts, string(b))
		}
	}
	return parts
}

// ExtractCodes scans body line by line and returns the last code per domain.
// Domains not listed are ignored unless domains is empty.
func ExtractCodes(body string, re *regexp.Regexp, domains []string) map[string]string {
	codes := make(map[string]string)
	for _, line := range strings.Split(body, "\n") {
		matches := re.FindStringSubmatch(strings.TrimSpace(line))
		if len(matches) < 3 {
			continue
		}
		domain := strings.ToLower(strings.Trim(strings.TrimSpace(matches[1]), "."))
		if len(domains) != 0 && !slices.Contains(domains, domain) {
			continue
		}
		codes[domain] = matches[2]
	}
	return codes
}
