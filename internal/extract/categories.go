package extract

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is one kind of message the model should turn into an action item.
type Category struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Examples    []string `yaml:"examples,omitempty"`
}

// DefaultCategories is the taxonomy used when no categories file is configured.
var DefaultCategories = []Category{
	{Name: "task assignment", Description: "someone is asked or agrees to do something", Examples: []string{"小王，明天把报告发给我"}},
	{Name: "meeting / schedule", Description: "a meeting, call or event is arranged for a time", Examples: []string{"周三下午三点开会"}},
	{Name: "deadline", Description: "something must be finished by a date or time"},
	{Name: "purchase / request", Description: "something needs to be bought, ordered or requested", Examples: []string{"We need ten laptops for the new hires"}},
	{Name: "follow-up", Description: "a pending question or promise that needs a reply later"},
	{Name: "decision requiring action", Description: "a decision was made that implies concrete next steps"},
}

type categoriesFile struct {
	Categories []Category `yaml:"categories"`
}

// LoadCategories reads a YAML taxonomy from path. An empty path or a missing
// file yields DefaultCategories; a malformed file is an error.
func LoadCategories(path string) ([]Category, error) {
	if path == "" {
		return DefaultCategories, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultCategories, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading categories file: %w", err)
	}

	var f categoriesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing categories file %s: %w", path, err)
	}
	out := make([]Category, 0, len(f.Categories))
	for i, c := range f.Categories {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return nil, fmt.Errorf("categories file %s: entry %d has no name", path, i)
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return DefaultCategories, nil
	}
	return out, nil
}
