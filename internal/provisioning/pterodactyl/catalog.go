package pterodactyl

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind is one sellable panel flavour: the egg and image a server is built from.
type Kind struct {
	Egg         int               `yaml:"egg"`
	DockerImage string            `yaml:"docker_image"`
	Startup     string            `yaml:"startup"`
	Environment map[string]string `yaml:"environment"`
	Databases   int               `yaml:"databases"`
	Allocations int               `yaml:"allocations"`
	Backups     int               `yaml:"backups"`
}

// Catalog maps resource kinds to their server templates.
type Catalog struct {
	Kinds map[string]Kind `yaml:"kinds"`
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	for name, k := range c.Kinds {
		if k.Allocations == 0 {
			k.Allocations = 1
		}
		c.Kinds[name] = k
	}
	return &c, nil
}

func (c *Catalog) Validate() error {
	if len(c.Kinds) == 0 {
		return fmt.Errorf("catalog defines no kinds")
	}
	for name, k := range c.Kinds {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("catalog kind with empty name")
		}
		if k.Egg <= 0 {
			return fmt.Errorf("kind %s: egg must be positive", name)
		}
		if strings.TrimSpace(k.DockerImage) == "" {
			return fmt.Errorf("kind %s: docker_image is required", name)
		}
		if strings.TrimSpace(k.Startup) == "" {
			return fmt.Errorf("kind %s: startup is required", name)
		}
	}
	return nil
}

// Names returns the kind names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Kinds))
	for name := range c.Kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) Lookup(name string) (Kind, bool) {
	k, ok := c.Kinds[name]
	return k, ok
}
