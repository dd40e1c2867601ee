package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateVerifyDrop(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.CreateUser("alice", "s3cret"))

	assert.NoError(t, s.Verify("alice", "s3cret"))
	assert.ErrorIs(t, s.Verify("alice", "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, s.Verify("bob", "s3cret"), ErrInvalidCredentials)

	assert.ErrorIs(t, s.CreateUser("alice", "other"), ErrUserExists)

	require.NoError(t, s.DropUser("alice"))
	assert.ErrorIs(t, s.DropUser("alice"), ErrUserNotFound)
	assert.ErrorIs(t, s.Verify("alice", "s3cret"), ErrInvalidCredentials)
}

func TestSetPassword(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.CreateUser("alice", "old"))
	require.NoError(t, s.SetPassword("alice", "new"))

	assert.NoError(t, s.Verify("alice", "new"))
	assert.ErrorIs(t, s.Verify("alice", "old"), ErrInvalidCredentials)

	assert.ErrorIs(t, s.SetPassword("bob", "x"), ErrUserNotFound)
}

func TestUsersListing(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.CreateUser("alice", "a"))
	require.NoError(t, s.CreateUser("bob", "b"))
	assert.ElementsMatch(t, []string{"alice", "bob"}, s.Users())
}
