package users_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roadlog/fleet-auth/users"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := users.HashPassword("admin123")
	require.NoError(t, err)
	require.NotEqual(t, "admin123", hash)
	require.True(t, strings.HasPrefix(hash, "$2a$12$"), "hash must use the fixed cost 12 work factor")

	require.True(t, users.CheckPasswordHash("admin123", hash))
	require.False(t, users.CheckPasswordHash("admin124", hash))
	require.False(t, users.CheckPasswordHash("", hash))
	require.False(t, users.CheckPasswordHash("admin123", "not-a-hash"))
}

func TestHashIsSalted(t *testing.T) {
	first, err := users.HashPassword("admin123")
	require.NoError(t, err)
	second, err := users.HashPassword("admin123")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    users.Role
		wantErr bool
	}{
		{"admin", users.RoleAdmin, false},
		{"user", users.RoleUser, false},
		{"", "", true},
		{"superuser", "", true},
		{"Admin", "", true},
	}

	for _, tc := range tests {
		role, err := users.ParseRole(tc.input)
		if tc.wantErr {
			require.Error(t, err, tc.input)
			continue
		}
		require.NoError(t, err, tc.input)
		require.Equal(t, tc.want, role)
	}
}

func TestRoleMembership(t *testing.T) {
	require.True(t, users.RoleAdmin.In(users.RoleAdmin))
	require.True(t, users.RoleAdmin.In(users.RoleUser, users.RoleAdmin))
	require.False(t, users.RoleUser.In(users.RoleAdmin))
	require.False(t, users.RoleUser.In())
}

func TestValidatePasswordStrength(t *testing.T) {
	require.NoError(t, users.ValidatePasswordStrength("Password1"))
	require.Error(t, users.ValidatePasswordStrength("short1A"))
	require.Error(t, users.ValidatePasswordStrength("alllowercase1"))
	require.Error(t, users.ValidatePasswordStrength("ALLUPPERCASE1"))
	require.Error(t, users.ValidatePasswordStrength("NoNumbersHere"))
}
