package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttrHelpers(t *testing.T) {
	tests := []struct {
		name    string
		attr    slog.Attr
		wantKey string
		wantVal string
	}{
		{"operation", Operation("inbox.refresh"), KeyOperation, "inbox.refresh"},
		{"route", Route("/api/emails"), KeyRoute, "/api/emails"},
		{"request id", RequestID("abc-1"), KeyRequestID, "abc-1"},
		{"status", Status(StatusSuccess), KeyStatus, "success"},
		{"error", Err(errors.New("boom")), KeyError, "boom"},
		{"domain", Domain("jane@example.com"), "user_domain", "example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKey, tt.attr.Key)
			assert.Equal(t, tt.wantVal, tt.attr.Value.String())
		})
	}
}

func TestErr_NilIsDropped(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logger.Info("no error here", Err(nil))

	assert.Equal(t, "", Err(nil).Key)
	assert.NotContains(t, buf.String(), KeyError+"=")
}

func TestWithOperationAndMode(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	WithMode(WithOperation(logger, "auth.callback"), "session").Info("done")

	out := buf.String()
	assert.Contains(t, out, "operation=auth.callback")
	assert.Contains(t, out, "mode=session")
}

func TestAnonymizeEmail(t *testing.T) {
	tests := []struct {
		email   string
		wantLen int
	}{
		{"jane@example.com", 21}, // "user:" + 16 hex chars
		{"user@gmail.com", 21},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			got := AnonymizeEmail(tt.email)
			assert.Len(t, got, tt.wantLen)
			if tt.wantLen > 0 {
				assert.True(t, strings.HasPrefix(got, "user:"))
				assert.NotContains(t, got, "@")
			}
		})
	}

	assert.Equal(t, AnonymizeEmail("test@example.com"), AnonymizeEmail("test@example.com"))
	assert.Equal(t, AnonymizeEmail("Test@Example.com"), AnonymizeEmail("test@example.com"))
	assert.NotEqual(t, AnonymizeEmail("test@example.com"), AnonymizeEmail("other@example.com"))
}

func TestUserHash(t *testing.T) {
	attr := UserHash("jane@example.com")
	assert.Equal(t, KeyUserHash, attr.Key)
	assert.Equal(t, AnonymizeEmail("jane@example.com"), attr.Value.String())
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"jane@example.com", "example.com"},
		{"user@gmail.com", "gmail.com"},
		{"invalid", ""},
		{"", ""},
		{"a@b@c", ""},
		{"Jane@Example.COM", "example.com"},
		{"@example.com", ""},
		{"jane@", ""},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractDomain(tt.email))
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantErr   bool
		wantInOut string
	}{
		{name: "text default", opts: Options{}, wantInOut: "msg=hello"},
		{name: "json", opts: Options{Format: FormatJSON}, wantInOut: `"msg":"hello"`},
		{name: "bad format", opts: Options{Format: "xml"}, wantErr: true},
		{name: "bad level", opts: Options{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.opts.Output = &buf

			logger, err := New(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			logger.Info("hello")
			assert.Contains(t, buf.String(), tt.wantInOut)
		})
	}
}

func TestNew_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Output: &buf})
	require.NoError(t, err)

	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")

	buf.Reset()
	logger, err = New(Options{Level: "warn", Output: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenState(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	expiry := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	logger.Info("token received", TokenState(true, expiry))

	assert.Contains(t, buf.String(), "token.refresh=true")
	assert.Contains(t, buf.String(), "token.expiry=2026-01-02T03:04:05.000Z")
}
