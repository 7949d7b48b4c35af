package cli

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineReader_ChatTranscript(t *testing.T) {
	transcript := "create client Jane Doe, jane@example.com\n" +
		"  edit phone=555 111 2222   \n" +
		"\n" +
		"confirm\r\n"
	lr := NewLineReader(strings.NewReader(transcript))
	ctx := context.Background()

	for _, want := range []string{
		"create client Jane Doe, jane@example.com",
		"edit phone=555 111 2222",
		"",
		"confirm",
	} {
		got, err := lr.ReadLine(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	for range 2 {
		_, err := lr.ReadLine(ctx)
		assert.ErrorIs(t, err, io.EOF, "EOF is sticky")
	}
}

func TestLineReader_Cancellation(t *testing.T) {
	t.Run("already cancelled", func(t *testing.T) {
		lr := NewLineReader(strings.NewReader("confirm\n"))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := lr.ReadLine(ctx)
		assert.ErrorIs(t, err, ErrInputCancelled)

		got, err := lr.ReadLine(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "confirm", got, "nothing was consumed")
	})

	t.Run("cancelled while waiting keeps the next line", func(t *testing.T) {
		pr, pw := io.Pipe()
		defer func() { _ = pr.Close() }()
		lr := NewLineReader(pr)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := lr.ReadLine(ctx)
		require.ErrorIs(t, err, ErrInputCancelled)

		go func() {
			_, _ = pw.Write([]byte("reject\n"))
			_ = pw.Close()
		}()

		got, err := lr.ReadLine(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "reject", got)

		_, err = lr.ReadLine(context.Background())
		assert.ErrorIs(t, err, io.EOF)
	})
}

func TestNewLineReader_NilPanics(t *testing.T) {
	assert.Panics(t, func() { NewLineReader(nil) })
}
