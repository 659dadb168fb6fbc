package urlparams

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		rawURL   string
		expected Values
	}{
		{
			name:   "query only",
			rawURL: "https://shop.example.com/auth/confirm?token_hash=abc&type=signup",
			expected: Values{
				"token_hash": "abc",
				"type":       "signup",
			},
		},
		{
			name:   "fragment only",
			rawURL: "https://shop.example.com/auth/confirm#access_token=at1&refresh_token=rt1",
			expected: Values{
				"access_token": "at1",
				"refresh_token": "rt1",
			},
		},
		{
			name:   "fragment wins on collision",
			rawURL: "https://shop.example.com/auth/confirm?type=recovery#type=signup&token_hash=xyz",
			expected: Values{
				"type":       "signup",
				"token_hash": "xyz",
			},
		},
		{
			name:   "keys are case-insensitive",
			rawURL: "https://shop.example.com/auth/confirm?Token_Hash=abc&TYPE=signup",
			expected: Values{
				"token_hash": "abc",
				"type":       "signup",
			},
		},
		{
			name:     "no parameters",
			rawURL:   "https://shop.example.com/auth/confirm",
			expected: Values{},
		},
		{
			name:     "unparsable url yields empty map",
			rawURL:   "://not a url",
			expected: Values{},
		},
		{
			name:   "fragment with leading slash",
			rawURL: "https://shop.example.com/auth/confirm#/access_token=at1",
			expected: Values{
				"access_token": "at1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.rawURL)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestValuesGet(t *testing.T) {
	v := Extract("https://shop.example.com/auth/confirm?Token_Hash=abc")

	assert.Equal(t, "abc", v.Get("token_hash"))
	assert.Equal(t, "abc", v.Get("TOKEN_HASH"))
	assert.Equal(t, "", v.Get("missing"))
	assert.True(t, v.Has("token_hash"))
	assert.False(t, v.Has("missing"))
}

func TestStripVerification(t *testing.T) {
	tests := []struct {
		name     string
		rawURL   string
		expected string
	}{
		{
			name:     "strips query parameters",
			rawURL:   "https://shop.example.com/auth/confirm?token_hash=abc&type=signup",
			expected: "https://shop.example.com/auth/confirm",
		},
		{
			name:     "strips fragment parameters",
			rawURL:   "https://shop.example.com/auth/confirm#access_token=at1&refresh_token=rt1",
			expected: "https://shop.example.com/auth/confirm",
		},
		{
			name:     "keeps unrelated parameters",
			rawURL:   "https://shop.example.com/auth/confirm?token_hash=abc&utm_source=mail",
			expected: "https://shop.example.com/auth/confirm?utm_source=mail",
		},
		{
			name:     "strips mixed case keys",
			rawURL:   "https://shop.example.com/auth/confirm?Access_Token=at1",
			expected: "https://shop.example.com/auth/confirm",
		},
		{
			name:     "no parameters is a no-op",
			rawURL:   "https://shop.example.com/auth/confirm",
			expected: "https://shop.example.com/auth/confirm",
		},
		{
			name:     "strips slash-prefixed fragment parameters",
			rawURL:   "https://shop.example.com/auth/confirm#/access_token=at1&refresh_token=rt1",
			expected: "https://shop.example.com/auth/confirm",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripVerification(tt.rawURL)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestStripVerificationRemovesEveryKnownKey(t *testing.T) {
	raw := "https://shop.example.com/auth/confirm?error_code=e&error_description=d&access_token=a&refresh_token=r&token_hash=h&token=t&type=signup&email=x@y.z&code=c"
	stripped := StripVerification(raw)
	require.Equal(t, "https://shop.example.com/auth/confirm", stripped)

	// Re-extracting from the clean URL must not find a replayable attempt.
	assert.Empty(t, Extract(stripped))
}

func TestStripVerificationSlashFragmentLeavesNothingToReplay(t *testing.T) {
	raw := "https://shop.example.com/auth/confirm#/access_token=at1&refresh_token=rt1"
	require.Equal(t, Values{"access_token": "at1", "refresh_token": "rt1"}, Extract(raw))

	stripped := StripVerification(raw)
	assert.Empty(t, Extract(stripped), "tokens must not survive into the clean URL")
}
