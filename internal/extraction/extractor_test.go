package extraction

import (
	"testing"

	"github.com/stretchr/testify/require"

	"honeypot-agent/internal/domain"
)

func TestExtract_UPI(t *testing.T) {
	out := Extract("Please send money to testuser@upi")
	require.Contains(t, out.Intelligence.UPIIDs, "testuser@upi")
	require.True(t, out.DeltaDetected)
}

func TestExtract_UPIPreservesCase(t *testing.T) {
	out := Extract("Transfer amount to SECURE@UPI immediately")
	require.Equal(t, domain.StringSet{"SECURE@UPI"}, out.Intelligence.UPIIDs)
	require.Contains(t, out.Intelligence.SuspiciousKeywords, "immediately")
}

func TestExtract_UPIRejectsShortParts(t *testing.T) {
	out := Extract("ping a@upi or ab@x")
	require.Empty(t, out.Intelligence.UPIIDs)
}

func TestExtract_PhoneNumber(t *testing.T) {
	out := Extract("Call me at 9876543210 immediately")
	require.Equal(t, domain.StringSet{"9876543210"}, out.Intelligence.PhoneNumbers)
	require.True(t, out.DeltaDetected)
}

func TestExtract_PhoneNumberPrefixes(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"reach +919876543210 now", "9876543210"},
		{"reach +91-9876543210 now", "9876543210"},
		{"reach +91 9876543210 now", "9876543210"},
		{"reach 09876543210 now", "9876543210"},
		{"(8123456789)", "8123456789"},
	}
	for _, tc := range cases {
		out := Extract(tc.text)
		require.Equal(t, domain.StringSet{tc.want}, out.Intelligence.PhoneNumbers, "text=%q", tc.text)
	}
}

func TestExtract_PhoneNumberRejectsInvalid(t *testing.T) {
	for _, text := range []string{
		"ref 5876543210",
		"ref 98765432101",
		"ref 98765",
		"order id X9876543210",
	} {
		out := Extract(text)
		require.Empty(t, out.Intelligence.PhoneNumbers, "text=%q", text)
	}
}

func TestExtract_AdjacentMatchesShareSeparator(t *testing.T) {
	out := Extract("9876543210 8765432109,7654321098")
	require.Equal(t, domain.StringSet{"9876543210", "8765432109", "7654321098"}, out.Intelligence.PhoneNumbers)
}

func TestExtract_Deduplicates(t *testing.T) {
	out := Extract("pay a.b@okbank or a.b@okbank, call 9876543210 / 9876543210")
	require.Equal(t, domain.StringSet{"a.b@okbank"}, out.Intelligence.UPIIDs)
	require.Equal(t, domain.StringSet{"9876543210"}, out.Intelligence.PhoneNumbers)
}

func TestExtract_PhoneNumberPrefixedSpellingsDedupe(t *testing.T) {
	out := Extract("call +91 9876543210 or 9876543210 or 09876543210")
	require.Equal(t, domain.StringSet{"9876543210"}, out.Intelligence.PhoneNumbers)

	merged, grew := domain.Merge(out.Intelligence, Extract("whatsapp +919876543210").Intelligence)
	require.False(t, grew)
	require.Equal(t, domain.StringSet{"9876543210"}, merged.PhoneNumbers)
}

func TestExtract_URL(t *testing.T) {
	out := Extract("Verify your account here: https://phish.example.com and http://x.test/a?b=c")
	require.Equal(t, domain.StringSet{"https://phish.example.com", "http://x.test/a?b=c"}, out.Intelligence.PhishingLinks)
	require.True(t, out.DeltaDetected)
}

func TestExtract_SuspiciousKeywords(t *testing.T) {
	out := Extract("Your account is blocked, verify urgently")
	require.ElementsMatch(t, []string{"account", "blocked", "verify", "urgent"}, []string(out.Intelligence.SuspiciousKeywords))
	require.True(t, out.DeltaDetected)
}

func TestExtract_NothingFound(t *testing.T) {
	for _, text := range []string{"Hello, how are you doing today?", "Okay noted, thanks.", ""} {
		out := Extract(text)
		require.True(t, out.Intelligence.IsEmpty(), "text=%q", text)
		require.False(t, out.DeltaDetected, "text=%q", text)
	}
}

func TestExtract_NeverReportsBankAccounts(t *testing.T) {
	out := Extract("Deposit to account 123456789012 IFSC SBIN0001234")
	require.Empty(t, out.Intelligence.BankAccounts)
}

func TestContainsAny(t *testing.T) {
	require.True(t, ContainsAny("Click HERE", []string{"click"}))
	require.False(t, ContainsAny("hello", []string{"click"}))
}
