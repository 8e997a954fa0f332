package crawler

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		title  string
		suffix string
		want   string
	}{
		{name: "spaces and colon", title: "Deep Nets: A Study", suffix: "_1.pdf", want: "Deep_Nets__A_Study_1.pdf"},
		{name: "empty title", title: "", suffix: "_1.pdf", want: "_1.pdf"},
		{name: "allowed punctuation kept", title: "v1.2-beta", suffix: "", want: "v1.2-beta"},
		{name: "multi-byte runes", title: "Über", suffix: "_2.pdf", want: "_ber_2.pdf"},
		{name: "path separators", title: "../etc/passwd", suffix: "_1.pdf", want: ".._etc_passwd_1.pdf"},
		{name: "suffix verbatim", title: "A", suffix: "_1 weird", want: "A_1 weird"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Sanitize(tt.title, tt.suffix))
		})
	}
}

func TestSanitizeOnlyEmitsAllowedCharacters(t *testing.T) {
	t.Parallel()

	allowed := regexp.MustCompile(`^[A-Za-z0-9._-]*$`)
	titles := []string{
		"Attention Is All You Need",
		"日本語のタイトル",
		"tab\tand\nnewline",
		"emoji 🚀 title",
		"100% <html> & \"quotes\"",
	}
	for _, title := range titles {
		got := Sanitize(title, "_1.pdf")
		require.True(t, strings.HasSuffix(got, "_1.pdf"), got)
		require.Regexp(t, allowed, strings.TrimSuffix(got, "_1.pdf"))
		require.Equal(t, got, Sanitize(title, "_1.pdf"))
	}
}

func TestSuffixIsOneBased(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "_1.pdf", Suffix(0, ".pdf"))
	assert.Equal(t, "_2.pdf", Suffix(1, ".pdf"))
	assert.Equal(t, "_3.pdf", Suffix(2, ".pdf"))
	assert.Equal(t, "Paper_A_2.pdf", FileName("Paper A", DownloadTarget{Index: 1, Ext: ".pdf"}))
}
