package collaborators

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidIdentifierAcceptsTypicalForms(t *testing.T) {
	for _, id := range []string{"octo/repo", "PROJ-123", "my_channel", "v1.2.3"} {
		assert.NoError(t, validIdentifier(id), "identifier %q should be accepted", id)
	}
}

func TestValidIdentifierRejectsInjectionAttempts(t *testing.T) {
	for _, id := range []string{"../../etc/passwd", "repo?evil=1", "a b", ""} {
		err := validIdentifier(id)
		assert.Error(t, err, "identifier %q should be rejected", id)
		assert.True(t, errors.Is(err, ErrInvalidParams))
	}
}

func TestValidURLAcceptsHTTPAndHTTPS(t *testing.T) {
	assert.NoError(t, validURL("https://example.com/path"))
	assert.NoError(t, validURL("http://example.com"))
}

func TestValidURLRejectsNonHTTPSchemes(t *testing.T) {
	for _, u := range []string{"ftp://example.com", "file:///etc/passwd", "not-a-url", "https://"} {
		assert.Error(t, validURL(u), "url %q should be rejected", u)
	}
}

func TestValidNumericIDRejectsNegative(t *testing.T) {
	assert.NoError(t, validNumericID(0))
	assert.NoError(t, validNumericID(42))
	assert.Error(t, validNumericID(-1))
}

func TestAuthorizedDestinationWildcard(t *testing.T) {
	accessory := map[string]string{"github_write_repos": "*"}
	assert.True(t, authorizedDestination(accessory, "github_write_repos", "any/repo"))
}

func TestAuthorizedDestinationExactMatch(t *testing.T) {
	accessory := map[string]string{"github_write_repos": "octo/repo,octo/other"}
	assert.True(t, authorizedDestination(accessory, "github_write_repos", "octo/repo"))
	assert.False(t, authorizedDestination(accessory, "github_write_repos", "octo/unlisted"))
}

func TestAuthorizedDestinationMissingKeyDenies(t *testing.T) {
	assert.False(t, authorizedDestination(map[string]string{}, "github_write_repos", "octo/repo"))
}

func TestSplitCSVIgnoresEmptySegments(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitCSV("a,,b,c,"))
	assert.Empty(t, splitCSV(""))
}
