package access

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestRegistryGrantRevoke(t *testing.T) {
	admin := common.HexToAddress("0x0a")
	other := common.HexToAddress("0x0b")
	reg := NewRegistry()

	require.ErrorIs(t, Require(reg, RoleOracleAdmin, admin), ErrUnauthorized)

	reg.Grant(RoleOracleAdmin, admin)
	require.NoError(t, Require(reg, RoleOracleAdmin, admin))
	require.ErrorIs(t, Require(reg, RoleOracleAdmin, other), ErrUnauthorized)
	require.ErrorIs(t, Require(reg, RoleKeeper, admin), ErrUnauthorized)
	require.Equal(t, []common.Address{admin}, reg.Members(RoleOracleAdmin))

	reg.Revoke(RoleOracleAdmin, admin)
	require.ErrorIs(t, Require(reg, RoleOracleAdmin, admin), ErrUnauthorized)
}

func TestRequireNilAuthorizer(t *testing.T) {
	require.ErrorIs(t, Require(nil, RoleKeeper, common.HexToAddress("0x01")), ErrUnauthorized)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("keeper")
	require.NoError(t, err)
	require.Equal(t, RoleKeeper, role)
	_, err = ParseRole("root")
	require.Error(t, err)
}
