package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueParseRoundtrip(t *testing.T) {
	pair, err := Issue("user-1", RoleStudent, "campus-attendance", "secret", time.Minute, time.Hour)
	require.NoError(t, err)

	claims, err := Parse(pair.AccessToken, "secret", "campus-attendance")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, RoleStudent, claims.Role)
}

func TestIssuePairExpiries(t *testing.T) {
	pair, err := Issue("user-1", RoleStudent, "campus-attendance", "secret", 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	// The refresh token carries the same identity and validates alone.
	claims, err := Parse(pair.RefreshToken, "secret", "campus-attendance")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestParseRejectsWrongKey(t *testing.T) {
	pair, err := Issue("user-1", RoleStaff, "campus-attendance", "secret", time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "other-secret", "campus-attendance")
	assert.Error(t, err)
}

func TestParseRejectsIssuerMismatch(t *testing.T) {
	pair, err := Issue("user-1", RoleStaff, "someone-else", "secret", time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "secret", "campus-attendance")
	assert.Error(t, err)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	pair, err := Issue("user-1", RoleStudent, "campus-attendance", "secret", -time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "secret", "campus-attendance")
	assert.Error(t, err)
}
