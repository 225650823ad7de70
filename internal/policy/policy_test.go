package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "realreview/pkg/domain"
	dErrors "realreview/pkg/domain-errors"
)

func TestRequire(t *testing.T) {
	tests := []struct {
		name     string
		subject  id.Role
		required []id.Role
		allowed  bool
	}{
		{"admin passes admin check", id.RoleAdmin, []id.Role{id.RoleAdmin}, true},
		{"user fails admin check", id.RoleUser, []id.Role{id.RoleAdmin}, false},
		{"user passes user check", id.RoleUser, []id.Role{id.RoleUser}, true},
		{"admin fails user-only check", id.RoleAdmin, []id.Role{id.RoleUser}, false},
		{"either role", id.RoleAdmin, []id.Role{id.RoleUser, id.RoleAdmin}, true},
		{"anonymous", "", []id.Role{id.RoleUser, id.RoleAdmin}, false},
		{"no roles required denies", id.RoleUser, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Require(tt.subject, tt.required...)
			assert.Equal(t, tt.allowed, d.Allowed)
			if tt.allowed {
				assert.NoError(t, d.Err())
				return
			}
			assert.NotEmpty(t, d.Reason)
			require.Error(t, d.Err())
			assert.True(t, dErrors.HasCode(d.Err(), dErrors.CodeForbidden))
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	assert.True(t, RequireAdmin(id.RoleAdmin).Allowed)
	assert.False(t, RequireAdmin(id.RoleUser).Allowed)
}
