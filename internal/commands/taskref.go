package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"tasksync/internal/service"
	"tasksync/internal/taskcache"
)

// TaskRef represents a parsed task reference.
type TaskRef struct {
	Num int        // 1-based position in the listed tasks, 0 when ID is set
	ID  service.ID // store identifier given as #ID
}

func (r TaskRef) String() string {
	if r.ID != "" {
		return "#" + r.ID.String()
	}
	return strconv.Itoa(r.Num)
}

// ErrTaskRefRequired indicates no task reference was provided.
var ErrTaskRefRequired = errors.New("task reference required")

// ParseTaskRef parses one task reference.
//
// Parsing rules:
//  1. All digits: position in the list as printed by `tasksync list`
//  2. '#' followed by a non-empty identifier: store identifier
//  3. Otherwise: error "invalid task reference: <ref>"
func ParseTaskRef(arg string) (TaskRef, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return TaskRef{}, ErrTaskRefRequired
	}

	if isAllDigits(arg) {
		num, err := strconv.Atoi(arg)
		if err != nil {
			return TaskRef{}, fmt.Errorf("invalid task reference: %s", arg)
		}
		return TaskRef{Num: num}, nil
	}

	if id, found := strings.CutPrefix(arg, "#"); found && id != "" && !strings.ContainsAny(id, " \t/") {
		return TaskRef{ID: service.ID(id)}, nil
	}

	return TaskRef{}, fmt.Errorf("invalid task reference: %s", arg)
}

// ParseTaskRefs parses every argument as a task reference.
func ParseTaskRefs(args []string) ([]TaskRef, error) {
	if len(args) == 0 {
		return nil, ErrTaskRefRequired
	}
	refs := make([]TaskRef, 0, len(args))
	for _, arg := range args {
		ref, err := ParseTaskRef(arg)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Resolve maps the reference to a task identifier using the cache's current
// snapshot. Positions are checked against the snapshot; identifiers are
// passed through so tasks outside the loaded page stay reachable.
func (r TaskRef) Resolve(c *taskcache.Cache) (service.ID, error) {
	if r.ID != "" {
		return r.ID, nil
	}
	tasks := c.Tasks()
	if r.Num < 1 || r.Num > len(tasks) {
		return "", fmt.Errorf("task number out of range: %d", r.Num)
	}
	return tasks[r.Num-1].ID, nil
}

// resolveAll resolves every reference against one snapshot, so later
// positions are not shifted by earlier mutations.
func resolveAll(c *taskcache.Cache, refs []TaskRef) ([]service.ID, error) {
	ids := make([]service.ID, 0, len(refs))
	for _, ref := range refs {
		id, err := ref.Resolve(c)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// isAllDigits returns true if s consists only of ASCII digits and is non-empty.
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
