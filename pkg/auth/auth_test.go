package auth_test

import (
	"testing"

	"vaultd/pkg/auth"

	"github.com/stretchr/testify/assert"
)

func TestStaticRoles(t *testing.T) {
	roles := auth.StaticRoles{}
	assert.False(t, roles.HasRole("alice", auth.RoleAdmin))

	roles.Grant("alice", auth.RoleAdmin)
	assert.True(t, roles.HasRole("alice", auth.RoleAdmin))
	assert.False(t, roles.HasRole("alice", auth.RoleOperator))
	assert.False(t, roles.HasRole("bob", auth.RoleAdmin))

	roles.Grant("alice", auth.RoleAdmin)
	assert.Len(t, roles["alice"], 1)

	roles.Grant("bob", auth.RoleOperator)
	assert.True(t, roles.HasRole("bob", auth.RoleOperator))
}
