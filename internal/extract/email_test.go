package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEmail(t *testing.T) {
	raw := "From: Jane Doe <Jane@Example.com>\r\n" +
		"Subject: New client\r\n" +
		"\r\n" +
		"Please add me as a client, my phone is 555-111-2222.\r\n" +
		"\r\n" +
		"On Tue, Mar 3, 2026 at 10:00 AM Agent <agent@example.com> wrote:\r\n" +
		"> Happy to help, send your details.\r\n" +
		"-- \r\n" +
		"Jane Doe | Springfield\r\n"

	msg := ParseEmail(raw)
	assert.Equal(t, "Jane Doe", msg.FromName)
	assert.Equal(t, "jane@example.com", msg.FromAddress)
	assert.Equal(t, "New client", msg.Subject)
	assert.Equal(t, "Please add me as a client, my phone is 555-111-2222.", msg.Body)
	assert.Equal(t, "New client\nPlease add me as a client, my phone is 555-111-2222.", msg.Text())
}

func TestParseEmail_NoHeaders(t *testing.T) {
	msg := ParseEmail("note: call her tomorrow\ncreate client Jane Doe")
	assert.Empty(t, msg.FromAddress)
	assert.Equal(t, "note: call her tomorrow\ncreate client Jane Doe", msg.Body)
}

func TestStripQuoted(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "plain", body: "hello\nworld", want: "hello\nworld"},
		{name: "quoted lines", body: "yes\n> earlier\n>> older", want: "yes"},
		{name: "signature", body: "body\n-- \nsig line", want: "body"},
		{name: "outlook original", body: "reply\n-----Original Message-----\nFrom: x", want: "reply"},
		{name: "forwarded", body: "fyi\n---------- Forwarded message ---------\nstuff", want: "fyi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripQuoted(tt.body))
		})
	}
}
