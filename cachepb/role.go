package cachepb

import "fmt"

// NODE_ROLE is the place of a node in the hierarchy.
type NODE_ROLE int32

const (
	NODE_ROLE_CLIENT NODE_ROLE = iota
	NODE_ROLE_L2
	NODE_ROLE_L1
	NODE_ROLE_STORE
)

var NODE_ROLE_name = map[NODE_ROLE]string{
	NODE_ROLE_CLIENT: "CLIENT",
	NODE_ROLE_L2:     "L2",
	NODE_ROLE_L1:     "L1",
	NODE_ROLE_STORE:  "STORE",
}

func (r NODE_ROLE) String() string {
	if s, ok := NODE_ROLE_name[r]; ok {
		return s
	}
	return fmt.Sprintf("NODE_ROLE(%d)", int32(r))
}

// ParseNodeRole is the inverse of NODE_ROLE.String.
func ParseNodeRole(s string) (NODE_ROLE, error) {
	for r, name := range NODE_ROLE_name {
		if name == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("cachepb: unknown node role %q", s)
}

// MarshalText lets NODE_ROLE print by name in JSON.
func (r NODE_ROLE) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *NODE_ROLE) UnmarshalText(b []byte) error {
	v, err := ParseNodeRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
