// distribute.go: worker-slot distribution across the pipeline stages.
package pipeline

import (
	"sort"

	"github.com/mkivela/tagdex/internal/errors"
)

// Stage role names used for slot distribution.
const (
	RoleSource    = "source"
	RoleNormalize = "normalize"
	RoleMerge     = "merge"
	RoleWrite     = "write"
)

// Distribute splits a total worker budget across stage roles. Required roles
// receive their fixed slot count; the rest of the budget is split across the
// weighted roles in proportion to their weights, with every weighted role
// guaranteed at least one slot. Remainder slots left over by integer division
// go to the heaviest roles first.
func Distribute(budget int, required map[string]int, weighted map[string]int) (map[string]int, error) {
	reservedSlots := 0
	for _, n := range required {
		reservedSlots += n
	}
	minimum := reservedSlots + len(weighted)
	if budget < minimum {
		return nil, errors.Newf("worker budget %d is below the minimum of %d", budget, minimum).
			Component("pipeline").
			Category(errors.CategoryConfiguration).
			Context("budget", budget).
			Context("minimum", minimum).
			Build()
	}

	slots := make(map[string]int, len(required)+len(weighted))
	for role, n := range required {
		slots[role] = n
	}

	// Every weighted role gets one slot up front so integer division can
	// never starve a role.
	totalWeight := 0
	roles := make([]string, 0, len(weighted))
	for role, weight := range weighted {
		if weight < 1 {
			return nil, errors.Newf("role %s has weight %d, want at least 1", role, weight).
				Component("pipeline").
				Category(errors.CategoryConfiguration).
				Build()
		}
		slots[role] = 1
		totalWeight += weight
		roles = append(roles, role)
	}

	remaining := budget - reservedSlots - len(weighted)
	if remaining == 0 || totalWeight == 0 {
		return slots, nil
	}

	assigned := 0
	for _, role := range roles {
		extra := remaining * weighted[role] / totalWeight
		slots[role] += extra
		assigned += extra
	}

	// Heaviest role first, name as the deterministic tie-break.
	sort.Slice(roles, func(i, j int) bool {
		if weighted[roles[i]] != weighted[roles[j]] {
			return weighted[roles[i]] > weighted[roles[j]]
		}
		return roles[i] < roles[j]
	})
	for i := 0; assigned < remaining; i = (i + 1) % len(roles) {
		slots[roles[i]]++
		assigned++
	}

	return slots, nil
}
