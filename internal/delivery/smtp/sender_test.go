package smtp

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/sendly/internal/delivery"
)

func TestNewSender_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:    "without smtp host",
			config:  Config{FromAddress: "news@sendly.app"},
			wantErr: "SMTP host is required",
		},
		{
			name:    "without from address",
			config:  Config{SMTPHost: "smtp.example.com"},
			wantErr: "from address is required",
		},
		{
			name:   "valid config",
			config: Config{SMTPHost: "smtp.example.com", FromAddress: "news@sendly.app"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, err := NewSender(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, sender)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 587, sender.config.SMTPPort)
		})
	}
}

func TestSender_BuildMessage(t *testing.T) {
	sender, err := NewSender(Config{SMTPHost: "smtp.example.com", FromAddress: "Sendly <news@sendly.app>"})
	require.NoError(t, err)

	raw, err := sender.buildMessage(delivery.Message{
		To:      "reader@example.com",
		Subject: "Your weekly Sendly digest: AI & Café",
		HTML:    "<h1>Hello</h1>",
		Text:    "# Hello",
	}, "<id@sendly.app>")
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "Sendly <news@sendly.app>", parsed.Header.Get("From"))
	assert.Equal(t, "reader@example.com", parsed.Header.Get("To"))
	assert.Equal(t, "<id@sendly.app>", parsed.Header.Get("Message-ID"))

	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Your weekly Sendly digest: AI & Café", subject)

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	reader := multipart.NewReader(parsed.Body, params["boundary"])
	var types, bodies []string
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(part)
		require.NoError(t, err)
		types = append(types, part.Header.Get("Content-Type"))
		bodies = append(bodies, string(content))
	}

	require.Len(t, types, 2)
	assert.True(t, strings.HasPrefix(types[0], "text/plain"))
	assert.True(t, strings.HasPrefix(types[1], "text/html"))
	assert.Equal(t, []string{"# Hello", "<h1>Hello</h1>"}, bodies)
}

func TestClassify(t *testing.T) {
	temporary := classify(&textproto.Error{Code: 451, Msg: "try later"})
	assert.True(t, temporary.IsRetryable())
	assert.Equal(t, 451, temporary.StatusCode)

	permanent := classify(&textproto.Error{Code: 550, Msg: "no such user"})
	assert.False(t, permanent.IsRetryable())

	network := classify(&net.OpError{Op: "dial", Err: errors.New("connection refused")})
	assert.True(t, network.IsRetryable())

	other := classify(errors.New("weird"))
	assert.False(t, other.IsRetryable())
	assert.Equal(t, "smtp", other.Provider)
}

func TestExtractEmail(t *testing.T) {
	assert.Equal(t, "news@sendly.app", extractEmail("Sendly <news@sendly.app>"))
	assert.Equal(t, "news@sendly.app", extractEmail("news@sendly.app"))
	assert.Equal(t, "sendly.app", domainOf("news@sendly.app"))
	assert.Equal(t, "localhost", domainOf("nobody"))
}
