package inventory

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// fileFormat is the YAML shape of an inventory file.
type fileFormat struct {
	Hosts  []hostEntry            `yaml:"hosts"`
	Groups map[string]groupEntry  `yaml:"groups"`
	Data   map[string]interface{} `yaml:"data"`
}

type hostEntry struct {
	Name string                 `yaml:"name" validate:"required"`
	Data map[string]interface{} `yaml:"data"`
}

type groupEntry struct {
	Hosts []hostEntry            `yaml:"hosts" validate:"required,dive"`
	Data  map[string]interface{} `yaml:"data"`
}

var validate = validator.New()

// Load reads and parses an inventory file.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	return Parse(data)
}

// Parse builds an inventory from YAML bytes.
func Parse(data []byte) (*Inventory, error) {
	var file fileFormat
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}

	hosts := make([]HostSpec, 0, len(file.Hosts))
	for _, entry := range file.Hosts {
		if err := validate.Struct(entry); err != nil {
			return nil, fmt.Errorf("invalid host entry: %w", err)
		}
		hosts = append(hosts, HostSpec{Name: entry.Name, Data: entry.Data})
	}

	// Map iteration order is not stable; sort group names so group data
	// merge order is deterministic across runs.
	groupNames := make([]string, 0, len(file.Groups))
	for name := range file.Groups {
		groupNames = append(groupNames, name)
	}
	sort.Strings(groupNames)

	groups := make([]GroupSpec, 0, len(groupNames))
	for _, name := range groupNames {
		entry := file.Groups[name]
		if err := validate.Struct(entry); err != nil {
			return nil, fmt.Errorf("invalid group %q: %w", name, err)
		}
		members := make([]HostSpec, 0, len(entry.Hosts))
		for _, he := range entry.Hosts {
			members = append(members, HostSpec{Name: he.Name, Data: he.Data})
		}
		groups = append(groups, GroupSpec{Name: name, Members: members, Data: entry.Data})
	}

	return New(hosts, groups, file.Data)
}
