package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens([]byte("secret"))

	raw, err := tokens.Issue(Actor{Role: RoleAdmin, Email: "boss@example.com", Name: "Boss"}, time.Hour)
	require.NoError(t, err)

	a, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, a.Role)
	assert.Equal(t, "boss@example.com", a.Email)
	assert.Equal(t, "Boss", a.Name)
	assert.True(t, a.IsAdmin())
}

func TestTokens_Verify(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	issuerTokens := NewTokens([]byte("secret"))
	issuerTokens.now = func() time.Time { return fixedNow }
	valid, err := issuerTokens.Issue(Actor{Role: RoleUser, Email: "u@example.com"}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		now    time.Time
		raw    string
	}{
		{name: "wrong secret", secret: "other", now: fixedNow, raw: valid},
		{name: "expired", secret: "secret", now: fixedNow.Add(2 * time.Hour), raw: valid},
		{name: "garbage", secret: "secret", now: fixedNow, raw: "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewTokens([]byte(tt.secret))
			v.now = func() time.Time { return tt.now }

			_, err := v.Verify(tt.raw)
			require.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestTokens_IssueRequiresEmail(t *testing.T) {
	_, err := NewTokens([]byte("secret")).Issue(Actor{Role: RoleUser}, time.Hour)
	require.Error(t, err)
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleAdmin, ParseRole("admin"))
	assert.Equal(t, RoleAdmin, ParseRole(" ADMIN "))
	assert.Equal(t, RoleUser, ParseRole("User"))
	assert.Equal(t, RoleUser, ParseRole(""))
	assert.Equal(t, RoleUser, ParseRole("manager"))
}

func TestActor_RequireAdmin(t *testing.T) {
	assert.NoError(t, Actor{Role: RoleAdmin}.RequireAdmin())
	assert.ErrorIs(t, Actor{Role: RoleUser}.RequireAdmin(), ErrForbidden)
}
