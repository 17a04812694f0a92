package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	m := NewManager("test-secret", 30)

	token, err := m.GenerateAccessToken("user1", "john_doe", "john@company.com")
	require.NoError(t, err)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user1", claims.UserID)
	assert.Equal(t, "john_doe", claims.DisplayName)
	assert.Equal(t, "john@company.com", claims.Email)
	assert.NotEmpty(t, claims.ID)
}

func TestParseRejectsForeignSecret(t *testing.T) {
	token, err := NewManager("secret-a", 30).GenerateAccessToken("user1", "", "")
	require.NoError(t, err)

	_, err = NewManager("secret-b", 30).ParseToken(token)
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	m := NewManager("test-secret", 1)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := m.GenerateAccessToken("user1", "", "")
	require.NoError(t, err)

	_, err = NewManager("test-secret", 1).ParseToken(token)
	assert.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := NewManager("test-secret", 1).ParseToken("not-a-token")
	assert.Error(t, err)
}
