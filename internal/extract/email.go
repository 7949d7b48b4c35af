package extract

import (
	"bufio"
	"io"
	"net/mail"
	"strings"
)

// EmailMessage is the useful part of a pasted email.
type EmailMessage struct {
	FromName    string
	FromAddress string
	Subject     string
	Body        string
}

// Text is the subject and cleaned body joined for extraction.
func (m EmailMessage) Text() string {
	if m.Subject == "" {
		return m.Body
	}
	return m.Subject + "\n" + m.Body
}

// ParseEmail reads headers when present and strips quoted replies and the
// signature from the body. Text without headers is treated as a bare body.
func ParseEmail(raw string) EmailMessage {
	var out EmailMessage

	body := raw
	if msg, err := mail.ReadMessage(strings.NewReader(raw)); err == nil && (msg.Header.Get("From") != "" || msg.Header.Get("Subject") != "") {
		out.Subject = strings.TrimSpace(msg.Header.Get("Subject"))
		if from, err := mail.ParseAddress(msg.Header.Get("From")); err == nil {
			out.FromName = strings.TrimSpace(from.Name)
			out.FromAddress = strings.ToLower(from.Address)
		}
		if b, err := io.ReadAll(msg.Body); err == nil {
			body = string(b)
		}
	}

	out.Body = StripQuoted(body)
	return out
}

// StripQuoted drops quoted reply lines, reply attributions and everything
// after a signature separator or forwarded-message marker.
func StripQuoted(body string) string {
	var kept []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		if line == "-- " || trimmed == "--" ||
			strings.HasPrefix(trimmed, "-----Original Message") ||
			strings.HasPrefix(trimmed, "---------- Forwarded message") {
			break
		}
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		if strings.HasPrefix(trimmed, "On ") && strings.HasSuffix(trimmed, "wrote:") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
