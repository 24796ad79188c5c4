// Package permission holds the capability catalog and the codec between
// permission codes and the 64-bit sets stored on roles.
//
// The default registry is built once from the catalog at package init and is
// never mutated afterwards, so it is safe for concurrent use without locking.
package permission

import (
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/warden/pkg/apperr"
)

// MaxBits is the width of a Set.
const MaxBits = 64

// Permission is a single named capability backed by one bit.
type Permission struct {
	Code     string   `json:"code"`
	Label    string   `json:"label"`
	Category Category `json:"category"`
	Bit      uint8    `json:"bit"`
}

// Mask returns the single-bit set for p.
func (p Permission) Mask() Set {
	return Set(1) << p.Bit
}

// Registry is an immutable catalog of permissions indexed by code and by
// registration order.
type Registry struct {
	perms  []Permission
	byCode map[string]int
	all    Set
}

// NewRegistry validates defs and builds a registry. Codes must be dotted
// "resource.action" strings and bits must be unique and below MaxBits.
func NewRegistry(defs []Permission) (*Registry, error) {
	r := &Registry{
		perms:  make([]Permission, 0, len(defs)),
		byCode: make(map[string]int, len(defs)),
	}

	for _, p := range defs {
		if !validCode(p.Code) {
			return nil, fmt.Errorf("invalid permission code %q", p.Code)
		}
		if int(p.Bit) >= MaxBits {
			return nil, fmt.Errorf("permission %s: bit %d out of range", p.Code, p.Bit)
		}
		if _, exists := r.byCode[p.Code]; exists {
			return nil, fmt.Errorf("permission %s registered twice", p.Code)
		}
		if r.all&p.Mask() != 0 {
			return nil, fmt.Errorf("permission %s: bit %d already assigned", p.Code, p.Bit)
		}

		r.byCode[p.Code] = len(r.perms)
		r.perms = append(r.perms, p)
		r.all |= p.Mask()
	}

	if len(r.perms) == 0 {
		return nil, errors.New("registry has no permissions")
	}

	return r, nil
}

func validCode(code string) bool {
	resource, action, ok := strings.Cut(code, ".")
	return ok && resource != "" && action != "" && !strings.Contains(action, ".")
}

// All returns the union of every registered bit.
func (r *Registry) All() Set {
	return r.all
}

// Lookup returns the permission registered under code.
func (r *Registry) Lookup(code string) (Permission, bool) {
	i, ok := r.byCode[code]
	if !ok {
		return Permission{}, false
	}
	return r.perms[i], true
}

// Permissions returns the catalog in registration order.
func (r *Registry) Permissions() []Permission {
	out := make([]Permission, len(r.perms))
	copy(out, r.perms)
	return out
}

// Has reports whether set grants code. Unknown codes are never granted.
func (r *Registry) Has(set Set, code string) bool {
	p, ok := r.Lookup(code)
	if !ok {
		return false
	}
	bit := p.Mask()
	return set&bit == bit
}

// ToCodes lists the codes granted by set in registration order. Bits that no
// permission declares are skipped.
func (r *Registry) ToCodes(set Set) []string {
	codes := make([]string, 0, set.Count())
	for _, p := range r.perms {
		if set&p.Mask() != 0 {
			codes = append(codes, p.Code)
		}
	}
	return codes
}

// FromCodes builds a set from codes, silently ignoring unknown codes so that
// stored data stays readable after catalog changes.
func (r *Registry) FromCodes(codes []string) Set {
	var set Set
	for _, code := range codes {
		if p, ok := r.Lookup(code); ok {
			set |= p.Mask()
		}
	}
	return set
}

// ParseCodes is the strict variant of FromCodes used for client input: any
// unknown code is reported as a bad request.
func (r *Registry) ParseCodes(codes []string) (Set, error) {
	var set Set
	var unknown []string
	for _, code := range codes {
		p, ok := r.Lookup(code)
		if !ok {
			unknown = append(unknown, code)
			continue
		}
		set |= p.Mask()
	}
	if len(unknown) > 0 {
		return 0, apperr.BadRequest("unknown permission codes: %s", strings.Join(unknown, ", "))
	}
	return set, nil
}

// Normalize clears every bit the registry does not declare.
func (r *Registry) Normalize(set Set) Set {
	return set & r.all
}

// Group is the catalog entries of one category.
type Group struct {
	Category    Category     `json:"category"`
	Permissions []Permission `json:"permissions"`
}

// Grouped returns the catalog grouped by category, both in registration order.
func (r *Registry) Grouped() []Group {
	var groups []Group
	index := make(map[Category]int)
	for _, p := range r.perms {
		i, ok := index[p.Category]
		if !ok {
			i = len(groups)
			index[p.Category] = i
			groups = append(groups, Group{Category: p.Category})
		}
		groups[i].Permissions = append(groups[i].Permissions, p)
	}
	return groups
}

var defaultRegistry = mustRegistry(catalog)

func mustRegistry(defs []Permission) *Registry {
	r, err := NewRegistry(defs)
	if err != nil {
		panic(err)
	}
	return r
}

// Default returns the process-wide registry built from the catalog.
func Default() *Registry { return defaultRegistry }

// All returns the full mask of the default registry.
func All() Set { return defaultRegistry.All() }

// Lookup finds code in the default registry.
func Lookup(code string) (Permission, bool) { return defaultRegistry.Lookup(code) }

// Has checks code against set using the default registry.
func Has(set Set, code string) bool { return defaultRegistry.Has(set, code) }

// ToCodes encodes set with the default registry.
func ToCodes(set Set) []string { return defaultRegistry.ToCodes(set) }

// FromCodes decodes codes with the default registry.
func FromCodes(codes []string) Set { return defaultRegistry.FromCodes(codes) }

// ParseCodes strictly decodes codes with the default registry.
func ParseCodes(codes []string) (Set, error) { return defaultRegistry.ParseCodes(codes) }
