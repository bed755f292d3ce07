package email_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notifykit/pkg/email"
)

func TestSendEmailParams_Validate(t *testing.T) {
	t.Parallel()

	valid := email.SendEmailParams{
		SendTo:   "user@example.com",
		Subject:  "Welcome",
		BodyHTML: "<p>hi</p>",
	}

	t.Run("valid params", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, valid.Validate())
	})

	t.Run("missing recipient", func(t *testing.T) {
		t.Parallel()
		p := valid
		p.SendTo = ""
		assert.ErrorIs(t, p.Validate(), email.ErrInvalidParams)
	})

	t.Run("malformed recipient", func(t *testing.T) {
		t.Parallel()
		p := valid
		p.SendTo = "not-an-address"
		assert.ErrorIs(t, p.Validate(), email.ErrInvalidParams)
	})

	t.Run("missing subject", func(t *testing.T) {
		t.Parallel()
		p := valid
		p.Subject = ""
		assert.ErrorIs(t, p.Validate(), email.ErrInvalidParams)
	})

	t.Run("missing body", func(t *testing.T) {
		t.Parallel()
		p := valid
		p.BodyHTML = ""
		assert.ErrorIs(t, p.Validate(), email.ErrInvalidParams)
	})
}

func TestIsValidAddress(t *testing.T) {
	t.Parallel()

	assert.True(t, email.IsValidAddress("user@example.com"))
	assert.True(t, email.IsValidAddress("first.last+tag@sub.example.co"))
	assert.False(t, email.IsValidAddress(""))
	assert.False(t, email.IsValidAddress("user@"))
	assert.False(t, email.IsValidAddress("user@example"))
	assert.False(t, email.IsValidAddress("user example@example.com"))
}

func TestDevSender_SendEmail(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sender := email.NewDevSender(dir)

	receipt, err := sender.SendEmail(context.Background(), email.SendEmailParams{
		SendTo:   "user@example.com",
		Subject:  "Password Reset",
		BodyHTML: "<p>reset link</p>",
		Tag:      "password-reset",
	})
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.NotEmpty(t, receipt.MessageID)
	assert.Equal(t, "user@example.com", receipt.SubmittedTo)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var htmlFile, jsonFile string
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".html":
			htmlFile = e.Name()
		case ".json":
			jsonFile = e.Name()
		}
	}
	require.NotEmpty(t, htmlFile)
	require.NotEmpty(t, jsonFile)
	assert.Contains(t, htmlFile, "password-reset")

	body, err := os.ReadFile(filepath.Join(dir, htmlFile))
	require.NoError(t, err)
	assert.Equal(t, "<p>reset link</p>", string(body))

	raw, err := os.ReadFile(filepath.Join(dir, jsonFile))
	require.NoError(t, err)
	var meta map[string]string
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, receipt.MessageID, meta["message_id"])
	assert.Equal(t, "user@example.com", meta["send_to"])
	assert.Equal(t, "Password Reset", meta["subject"])
}

func TestDevSender_RejectsInvalidParams(t *testing.T) {
	t.Parallel()

	sender := email.NewDevSender(t.TempDir())
	_, err := sender.SendEmail(context.Background(), email.SendEmailParams{
		SendTo: "user@example.com",
	})
	assert.ErrorIs(t, err, email.ErrInvalidParams)
}

func TestDevSender_SanitizesLongSubjects(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sender := email.NewDevSender(dir)

	_, err := sender.SendEmail(context.Background(), email.SendEmailParams{
		SendTo:   "user@example.com",
		Subject:  strings.Repeat("Very Long Subject / With * Bad <Chars> ", 10),
		BodyHTML: "<p>hi</p>",
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.LessOrEqual(t, len(e.Name()), 130)
		assert.NotContains(t, e.Name(), "*")
		assert.NotContains(t, e.Name(), "/")
	}
}
