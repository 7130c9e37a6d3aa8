package signer_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"

	"github.com/razorphish/core-api-sub000/internal/domain"
	"github.com/razorphish/core-api-sub000/internal/signer"
)

var alphanumeric = regexp.MustCompile(`^[A-Za-z0-9]+$`)

func TestGenerateOpaqueToken(t *testing.T) {
	token, err := signer.GenerateOpaqueToken(0)
	require.NoError(t, err)
	require.Len(t, token, signer.DefaultTokenLength)
	require.Regexp(t, alphanumeric, token)

	short, err := signer.GenerateOpaqueToken(16)
	require.NoError(t, err)
	require.Len(t, short, 16)

	other, err := signer.GenerateOpaqueToken(0)
	require.NoError(t, err)
	require.NotEqual(t, token, other)
}

func TestFingerprintDeterministic(t *testing.T) {
	raw, err := signer.GenerateOpaqueToken(64)
	require.NoError(t, err)

	first := signer.Fingerprint(raw)
	second := signer.Fingerprint(raw)
	require.Equal(t, first, second)
	require.NotEqual(t, raw, first)
	require.Len(t, first, 64)
	require.NotEqual(t, first, signer.Fingerprint(raw+"x"))
}

func TestIssueComputesExpiry(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := signer.New(node, signer.WithClock(func() time.Time { return now }), signer.WithTokenLength(32))

	issued, err := s.Issue(signer.IssueRequest{
		UserID:          "42",
		ClientID:        "core-web-ui",
		Name:            domain.TokenNameAccess,
		LifetimeMinutes: 30,
		Scope:           "*",
		Origin:          "http://localhost:4200",
	})
	require.NoError(t, err)

	require.Len(t, issued.Raw, 32)
	require.Equal(t, signer.Fingerprint(issued.Raw), issued.Token.Value)
	require.NotEqual(t, issued.Raw, issued.Token.Value)
	require.Equal(t, int64(1800), issued.Token.ExpiresIn)
	require.Equal(t, now.Add(30*time.Minute), issued.Token.DateExpire)
	require.Equal(t, domain.TokenTypeBearer, issued.Token.Type)
	require.Equal(t, "local", issued.Token.LoginProvider)
	require.Equal(t, "42", issued.Token.UserID)
	require.NotEmpty(t, issued.Token.ID)
}

func TestIssueUsesProvidedRaw(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s := signer.New(node)

	issued, err := s.Issue(signer.IssueRequest{Name: domain.TokenNameAccess, LifetimeMinutes: 1, Raw: "header.payload.sig"})
	require.NoError(t, err)
	require.Equal(t, "header.payload.sig", issued.Raw)
	require.Equal(t, signer.Fingerprint("header.payload.sig"), issued.Token.Value)
}
