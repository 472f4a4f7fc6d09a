package access

import (
	"fmt"
	"slices"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RolePetani     Role = "petani"
	RoleManagement Role = "management"
	RoleCustomer   Role = "customer"
)

type Subrole string

const (
	SubroleNone      Subrole = ""
	SubroleGudangIn  Subrole = "gudang_in"
	SubroleGudangOut Subrole = "gudang_out"
	SubroleProduksi  Subrole = "produksi"
	SubrolePemasaran Subrole = "pemasaran"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RolePetani, RoleManagement, RoleCustomer:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func ParseSubrole(s string) (Subrole, error) {
	switch r := Subrole(s); r {
	case SubroleNone, SubroleGudangIn, SubroleGudangOut, SubroleProduksi, SubrolePemasaran:
		return r, nil
	}
	return "", fmt.Errorf("unknown management subrole %q", s)
}

// Actor is the authenticated caller of a mutating operation.
type Actor struct {
	ID       string
	Role     Role
	Subrole  Subrole
	Verified bool
}

// Validate checks the subrole pairing: management actors carry exactly one
// subrole, everybody else none.
func (a Actor) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("actor id is required")
	}
	if _, err := ParseRole(string(a.Role)); err != nil {
		return err
	}
	if _, err := ParseSubrole(string(a.Subrole)); err != nil {
		return err
	}
	if a.Role == RoleManagement && a.Subrole == SubroleNone {
		return fmt.Errorf("management actor requires a subrole")
	}
	if a.Role != RoleManagement && a.Subrole != SubroleNone {
		return fmt.Errorf("subrole %q is only valid for management", a.Subrole)
	}
	return nil
}

// Rule is a role set plus an optional management subrole set. An empty
// Subroles set means any subrole is accepted.
type Rule struct {
	Roles    []Role
	Subroles []Subrole
}

func Require(roles ...Role) Rule { return Rule{Roles: roles} }

func (r Rule) WithSubroles(subs ...Subrole) Rule {
	r.Subroles = subs
	return r
}

// Authorize is a pure check of an actor against a rule. Non-admin actors
// must be verified regardless of role match; the subrole set only applies to
// management actors.
func Authorize(a Actor, rule Rule) bool {
	if a.Validate() != nil {
		return false
	}
	if !slices.Contains(rule.Roles, a.Role) {
		return false
	}
	if a.Role != RoleAdmin && !a.Verified {
		return false
	}
	if a.Role == RoleManagement && len(rule.Subroles) > 0 {
		return slices.Contains(rule.Subroles, a.Subrole)
	}
	return true
}
