package entry

import (
	"fmt"
	"strconv"
	"strings"
)

// PermissionKind distinguishes the three permission tiers a key can hold.
type PermissionKind int

const (
	PermissionKindRead PermissionKind = iota
	PermissionKindWrite
	PermissionKindAdmin
)

// Permission is a key's authority within a database: Read, Write(priority),
// or Admin(priority). Lower priority numbers outrank higher ones within the
// same kind; Admin always outranks Write, which always outranks Read.
type Permission struct {
	Kind     PermissionKind
	Priority uint32 // meaningless for PermissionKindRead
}

func Read() Permission { return Permission{Kind: PermissionKindRead} }

func Write(priority uint32) Permission {
	return Permission{Kind: PermissionKindWrite, Priority: priority}
}

func Admin(priority uint32) Permission {
	return Permission{Kind: PermissionKindAdmin, Priority: priority}
}

// CanWrite reports whether this permission authorizes writes to
// non-settings substores.
func (p Permission) CanWrite() bool {
	return p.Kind == PermissionKindWrite || p.Kind == PermissionKindAdmin
}

// CanAdmin reports whether this permission authorizes writes to
// _settings (and therefore everything CanWrite authorizes too).
func (p Permission) CanAdmin() bool {
	return p.Kind == PermissionKindAdmin
}

// authorityScore orders permissions so that a larger score means strictly
// higher authority: Admin > Write > Read, and within Write/Admin a lower
// Priority outranks a higher one.
func (p Permission) authorityScore() int64 {
	switch p.Kind {
	case PermissionKindAdmin:
		return 2_000_000_000 - int64(p.Priority)
	case PermissionKindWrite:
		return 1_000_000_000 - int64(p.Priority)
	default:
		return 0
	}
}

// Compare returns a negative number if p has less authority than o, zero if
// equal, and a positive number if p has more authority than o.
func (p Permission) Compare(o Permission) int {
	switch ps, os := p.authorityScore(), o.authorityScore(); {
	case ps < os:
		return -1
	case ps > os:
		return 1
	default:
		return 0
	}
}

func (p Permission) String() string {
	switch p.Kind {
	case PermissionKindRead:
		return "read"
	case PermissionKindWrite:
		return fmt.Sprintf("write:%d", p.Priority)
	case PermissionKindAdmin:
		return fmt.Sprintf("admin:%d", p.Priority)
	default:
		return "unknown"
	}
}

// ParsePermission parses the "read" | "write:<u32>" | "admin:<u32>"
// wire format.
func ParsePermission(s string) (Permission, error) {
	parts := strings.SplitN(s, ":", 2)
	switch parts[0] {
	case "read":
		return Read(), nil
	case "write":
		if len(parts) != 2 {
			return Permission{}, fmt.Errorf("entry: write permission requires a priority: %q", s)
		}
		priority, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return Permission{}, fmt.Errorf("entry: invalid write priority %q: %w", parts[1], err)
		}
		return Write(uint32(priority)), nil
	case "admin":
		if len(parts) != 2 {
			return Permission{}, fmt.Errorf("entry: admin permission requires a priority: %q", s)
		}
		priority, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return Permission{}, fmt.Errorf("entry: invalid admin priority %q: %w", parts[1], err)
		}
		return Admin(uint32(priority)), nil
	default:
		return Permission{}, fmt.Errorf("entry: invalid permission string %q", s)
	}
}

// MarshalJSON encodes a Permission using its wire string form.
func (p Permission) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(p.String())), nil
}

// UnmarshalJSON decodes a Permission from its wire string form.
func (p *Permission) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return err
	}
	parsed, err := ParsePermission(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// PermissionBounds clamps a permission inherited through a delegated-tree
// reference: the effective permission can never exceed Max, and (if Min is
// set) never falls below it either.
type PermissionBounds struct {
	Max Permission  `json:"max"`
	Min *Permission `json:"min,omitempty"`
}

// Clamp restricts p to fall within b.
func (b PermissionBounds) Clamp(p Permission) Permission {
	if p.Compare(b.Max) > 0 {
		p = b.Max
	}
	if b.Min != nil && p.Compare(*b.Min) < 0 {
		p = *b.Min
	}
	return p
}

// KeyStatus is whether an auth key is usable.
type KeyStatus int

const (
	KeyStatusActive KeyStatus = iota
	KeyStatusRevoked
)

func (s KeyStatus) String() string {
	if s == KeyStatusRevoked {
		return "revoked"
	}
	return "active"
}

func ParseKeyStatus(s string) (KeyStatus, error) {
	switch s {
	case "active":
		return KeyStatusActive, nil
	case "revoked":
		return KeyStatusRevoked, nil
	default:
		return 0, fmt.Errorf("entry: invalid key status %q", s)
	}
}

func (s KeyStatus) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(s.String())), nil
}

func (s *KeyStatus) UnmarshalJSON(data []byte) error {
	raw, err := strconv.Unquote(string(data))
	if err != nil {
		return err
	}
	parsed, err := ParseKeyStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
