// Package access is the capability registry consulted by administrative
// entry points. Role bootstrapping happens outside the core; the core only
// asks whether an account holds a named capability.
package access

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Role names a capability.
type Role string

const (
	RoleOracleAdmin  Role = "oracle_admin"
	RoleFeeAdmin     Role = "fee_admin"
	RoleStakingAdmin Role = "staking_admin"
	RoleVaultAdmin   Role = "vault_admin"
	RoleKeeper       Role = "keeper"
)

var ErrUnauthorized = errors.New("access: unauthorized")

// Authorizer answers capability checks.
type Authorizer interface {
	HasRole(role Role, account common.Address) bool
}

// Require fails with ErrUnauthorized when account lacks role. A nil
// authorizer denies everything.
func Require(auth Authorizer, role Role, account common.Address) error {
	if auth == nil || !auth.HasRole(role, account) {
		return fmt.Errorf("%w: %s lacks %s", ErrUnauthorized, account.Hex(), role)
	}
	return nil
}

// Registry is an in-memory Authorizer.
type Registry struct {
	mu    sync.RWMutex
	roles map[Role]map[common.Address]struct{}
}

func NewRegistry() *Registry {
	return &Registry{roles: make(map[Role]map[common.Address]struct{})}
}

func (r *Registry) Grant(role Role, account common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.roles[role]
	if members == nil {
		members = make(map[common.Address]struct{})
		r.roles[role] = members
	}
	members[account] = struct{}{}
}

func (r *Registry) Revoke(role Role, account common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roles[role], account)
}

func (r *Registry) HasRole(role Role, account common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roles[role][account]
	return ok
}

// Members lists the accounts holding role in address order.
func (r *Registry) Members(role Role) []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, 0, len(r.roles[role]))
	for addr := range r.roles[role] {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// ParseRole validates a role name.
func ParseRole(name string) (Role, error) {
	switch Role(name) {
	case RoleOracleAdmin, RoleFeeAdmin, RoleStakingAdmin, RoleVaultAdmin, RoleKeeper:
		return Role(name), nil
	default:
		return "", fmt.Errorf("unknown role: %s", name)
	}
}
