// Package inventory resolves the hosts and groups an execution run targets.
// Host data is merged deterministically: global data first, then group data
// in group declaration order, then host-level overrides on top.
package inventory

import (
	"fmt"
	"sort"
	"sync"
)

// Host represents one machine in the inventory. Live sessions are owned by
// the engine's run state, not the host itself.
type Host struct {
	Name string

	// data holds host-level values only. Use Data/AllData for the merged view.
	data map[string]interface{}

	// merged is the precomputed global < group < host view.
	merged map[string]interface{}
}

// Data returns the merged value for a key, host overrides winning over group
// data and group data winning over global defaults.
func (h *Host) Data(key string) (interface{}, bool) {
	v, ok := h.merged[key]
	return v, ok
}

// DataString returns the merged value for a key as a string, or fallback if
// the key is missing or not a string.
func (h *Host) DataString(key, fallback string) string {
	if v, ok := h.merged[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// DataInt returns the merged value for a key as an int, or fallback.
func (h *Host) DataInt(key string, fallback int) int {
	if v, ok := h.merged[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return fallback
}

// AllData returns a copy of the merged data map.
func (h *Host) AllData() map[string]interface{} {
	out := make(map[string]interface{}, len(h.merged))
	for k, v := range h.merged {
		out[k] = v
	}
	return out
}

// Group is an ordered list of member host names plus group-level data.
type Group struct {
	Name    string
	Members []string
	Data    map[string]interface{}
}

// HostSpec declares one host when building an inventory programmatically.
type HostSpec struct {
	Name string
	Data map[string]interface{}
}

// GroupSpec declares one group when building an inventory programmatically.
type GroupSpec struct {
	Name    string
	Members []HostSpec
	Data    map[string]interface{}
}

// Inventory is the resolved set of hosts and groups for a run.
type Inventory struct {
	hosts      map[string]*Host
	hostOrder  []string
	groups     map[string]*Group
	groupOrder []string

	mu        sync.Mutex
	connected map[string]*Host
}

// New builds an inventory from host specs, group specs and global data.
// Hosts referenced only by groups are created implicitly. Group data merges
// in group declaration order, later groups overriding earlier ones for the
// same key; host data always wins.
func New(hosts []HostSpec, groups []GroupSpec, global map[string]interface{}) (*Inventory, error) {
	inv := &Inventory{
		hosts:     make(map[string]*Host),
		groups:    make(map[string]*Group),
		connected: make(map[string]*Host),
	}

	addHost := func(spec HostSpec) *Host {
		if h, ok := inv.hosts[spec.Name]; ok {
			for k, v := range spec.Data {
				h.data[k] = v
			}
			return h
		}
		h := &Host{Name: spec.Name, data: make(map[string]interface{})}
		for k, v := range spec.Data {
			h.data[k] = v
		}
		inv.hosts[spec.Name] = h
		inv.hostOrder = append(inv.hostOrder, spec.Name)
		return h
	}

	for _, spec := range hosts {
		addHost(spec)
	}

	for _, gs := range groups {
		if _, ok := inv.groups[gs.Name]; ok {
			return nil, fmt.Errorf("duplicate group %q", gs.Name)
		}
		g := &Group{Name: gs.Name, Data: make(map[string]interface{})}
		for k, v := range gs.Data {
			g.Data[k] = v
		}
		for _, member := range gs.Members {
			addHost(member)
			g.Members = append(g.Members, member.Name)
		}
		inv.groups[gs.Name] = g
		inv.groupOrder = append(inv.groupOrder, gs.Name)
	}

	// Every group member must exist in the host set. Members are added
	// implicitly above, so this guards future mutations of the structs.
	for _, name := range inv.groupOrder {
		for _, member := range inv.groups[name].Members {
			if _, ok := inv.hosts[member]; !ok {
				return nil, fmt.Errorf("group %q references unknown host %q", name, member)
			}
		}
	}

	inv.mergeData(global)
	return inv, nil
}

// mergeData precomputes each host's merged data view.
func (inv *Inventory) mergeData(global map[string]interface{}) {
	for _, name := range inv.hostOrder {
		h := inv.hosts[name]
		merged := make(map[string]interface{})
		for k, v := range global {
			merged[k] = v
		}
		for _, gname := range inv.groupOrder {
			g := inv.groups[gname]
			for _, member := range g.Members {
				if member == name {
					for k, v := range g.Data {
						merged[k] = v
					}
					break
				}
			}
		}
		for k, v := range h.data {
			merged[k] = v
		}
		h.merged = merged
	}
}

// Get returns a host by name.
func (inv *Inventory) Get(name string) (*Host, bool) {
	h, ok := inv.hosts[name]
	return h, ok
}

// Hosts returns all hosts in declaration order.
func (inv *Inventory) Hosts() []*Host {
	out := make([]*Host, 0, len(inv.hostOrder))
	for _, name := range inv.hostOrder {
		out = append(out, inv.hosts[name])
	}
	return out
}

// Len returns the number of distinct hosts.
func (inv *Inventory) Len() int {
	return len(inv.hosts)
}

// Group returns a group by name.
func (inv *Inventory) Group(name string) (*Group, bool) {
	g, ok := inv.groups[name]
	return g, ok
}

// GroupData returns the data map declared on a group.
func (inv *Inventory) GroupData(name string) map[string]interface{} {
	if g, ok := inv.groups[name]; ok {
		return g.Data
	}
	return nil
}

// MarkConnected adds a host to the connected subset.
func (inv *Inventory) MarkConnected(h *Host) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.connected[h.Name] = h
}

// ConnectedHosts returns the connected subset sorted by name.
func (inv *Inventory) ConnectedHosts() []*Host {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	names := make([]string, 0, len(inv.connected))
	for name := range inv.connected {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Host, 0, len(names))
	for _, name := range names {
		out = append(out, inv.connected[name])
	}
	return out
}

// IsConnected reports whether a host is in the connected subset.
func (inv *Inventory) IsConnected(name string) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	_, ok := inv.connected[name]
	return ok
}
