package gitx

import (
	"sort"
	"strings"

	"github.com/skaphos/gitlab-sync/internal/model"
)

// Submodule is one entry from .gitmodules.
type Submodule struct {
	Name string
	Path string
}

// ParseRefList parses `git for-each-ref --format="%(refname) %(objectname)"`
// output into a ref -> object id map.
func ParseRefList(output string) map[string]string {
	refs := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		refs[fields[0]] = fields[1]
	}
	return refs
}

// DiffRefs compares two ref snapshots and returns the changes sorted by ref name.
func DiffRefs(before, after map[string]string) []model.RefChange {
	var changes []model.RefChange
	for ref, newID := range after {
		oldID, ok := before[ref]
		switch {
		case !ok:
			changes = append(changes, model.RefChange{Ref: ref, New: newID, Note: "new"})
		case oldID != newID:
			changes = append(changes, model.RefChange{Ref: ref, Old: oldID, New: newID, Note: "updated"})
		}
	}
	for ref, oldID := range before {
		if _, ok := after[ref]; !ok {
			changes = append(changes, model.RefChange{Ref: ref, Old: oldID, Note: "deleted"})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Ref < changes[j].Ref })
	return changes
}

// ParsePushPorcelain parses `git push --porcelain` output.
//
// Each ref line has the form:
//
//	<flag> \t <from>:<to> \t <summary> (<reason>)
//
// Lines for refs that were already up to date ("=") are dropped.
func ParsePushPorcelain(output string) []model.RefUpdate {
	var updates []model.RefUpdate
	for _, line := range strings.Split(output, "\n") {
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) < 2 || len(parts[0]) != 1 {
			continue
		}
		flag := parts[0]
		if flag == "=" {
			continue
		}
		local, remote, ok := strings.Cut(parts[1], ":")
		if !ok {
			continue
		}
		update := model.RefUpdate{Flag: flag, Local: local, Remote: remote}
		if len(parts) == 3 {
			update.Summary = strings.TrimSpace(parts[2])
		}
		updates = append(updates, update)
	}
	return updates
}

// ParseSubmodulePaths parses
//
//	git config --file .gitmodules --get-regexp '^submodule\..*\.path$'
//
// output, preserving file order.
func ParseSubmodulePaths(output string) []Submodule {
	var subs []Submodule
	for _, line := range strings.Split(output, "\n") {
		key, path, ok := strings.Cut(strings.TrimSpace(line), " ")
		if !ok {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(key, "submodule."), ".path")
		subs = append(subs, Submodule{Name: name, Path: strings.TrimSpace(path)})
	}
	return subs
}
