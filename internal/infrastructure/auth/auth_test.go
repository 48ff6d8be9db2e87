package auth

import (
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teens-space/progress-hub/internal/domain/curator"
	"github.com/teens-space/progress-hub/internal/domain/shared"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func newTestTokens(t *testing.T) *Tokens {
	t.Helper()
	tokens, err := NewTokens(testSecret, "")
	require.NoError(t, err)
	tokens.now = func() time.Time { return testNow }
	return tokens
}

func TestTokens_RoundTrip(t *testing.T) {
	tokens := newTestTokens(t)

	in := curator.Session{
		Role:       curator.RoleParent,
		CuratorID:  "3f2b8c1e-4d5a-4e6f-9a0b-1c2d3e4f5a6b",
		TelegramID: 555,
		ExpiresAt:  testNow.Add(time.Hour),
	}
	token, err := tokens.Issue(in)
	require.NoError(t, err)

	out, err := tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestTokens_RejectsExpiredAndForeign(t *testing.T) {
	tokens := newTestTokens(t)

	expired, err := tokens.Issue(curator.Session{Role: curator.RoleStudent, TelegramID: 1, ExpiresAt: testNow.Add(-time.Minute)})
	require.NoError(t, err)
	_, err = tokens.Parse(expired)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	other, err := NewTokens("ffffffffffffffffffffffffffffffff", "")
	require.NoError(t, err)
	foreign, err := other.Issue(curator.Session{Role: curator.RoleStudent, TelegramID: 1, ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	_, err = tokens.Parse(foreign)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = tokens.Parse("not.a.token")
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestTokens_RejectsSessionWithoutSubject(t *testing.T) {
	tokens := newTestTokens(t)
	token, err := tokens.Issue(curator.Session{Role: curator.RoleCurator, ExpiresAt: testNow.Add(time.Hour)})
	require.NoError(t, err)

	_, err = tokens.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokens_ShortSecret(t *testing.T) {
	_, err := NewTokens("short", "")
	assert.Error(t, err)
}

func signedInitData(v *InitDataValidator, authDate time.Time) url.Values {
	values := url.Values{}
	values.Set("query_id", "AAE")
	values.Set("user", `{"id":777,"first_name":"Аня","language_code":"ru"}`)
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	values.Set("hash", v.Sign(values))
	return values
}

func TestInitData_Valid(t *testing.T) {
	v := NewInitDataValidator("123:bot-token", time.Hour)
	v.now = func() time.Time { return testNow }

	data, err := v.Validate(signedInitData(v, testNow.Add(-time.Minute)).Encode())
	require.NoError(t, err)
	assert.Equal(t, shared.TelegramID(777), data.TelegramID())
	assert.Equal(t, "Аня", data.User.FirstName)
	assert.Equal(t, "AAE", data.QueryID)
}

func TestInitData_Rejects(t *testing.T) {
	v := NewInitDataValidator("123:bot-token", time.Hour)
	v.now = func() time.Time { return testNow }

	tampered := signedInitData(v, testNow)
	tampered.Set("user", `{"id":778,"first_name":"Аня"}`)
	_, err := v.Validate(tampered.Encode())
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	old := signedInitData(v, testNow.Add(-2*time.Hour))
	_, err = v.Validate(old.Encode())
	assert.ErrorIs(t, err, shared.ErrExpired)

	other := NewInitDataValidator("other-token", time.Hour)
	_, err = v.Validate(signedInitData(other, testNow).Encode())
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = v.Validate("user=%7B%7D")
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}
