package puller

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type CategoryConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// CategoriesConfig accepts either:
//  1. mapping form (preferred):
//     categories:
//     technology: https://example.com/tech.rss
//     world:      https://example.com/world.rss
//  2. list form, for several feeds sharing one category:
//     categories:
//     - id: tech-1
//     name: technology
//     url: https://...
type CategoriesConfig struct {
	Items []CategoryConfig
}

func (c *CategoriesConfig) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case yaml.MappingNode:
		items := make([]CategoryConfig, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			k := value.Content[i]
			v := value.Content[i+1]
			if v.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: category %q must map to a feed url", v.Line, k.Value)
			}
			name := strings.TrimSpace(k.Value)
			items = append(items, CategoryConfig{ID: name, Name: name, URL: strings.TrimSpace(v.Value)})
		}
		c.Items = items
		return nil
	case yaml.SequenceNode:
		var items []CategoryConfig
		if err := value.Decode(&items); err != nil {
			return err
		}
		c.Items = items
		return nil
	default:
		return fmt.Errorf("line %d: categories must be a mapping or a list", value.Line)
	}
}

type FileConfig struct {
	DB       string `yaml:"db"`
	DropRoot string `yaml:"drop_root"`
	Debug    bool   `yaml:"debug"`

	// CategoriesFile is a CSV of identifier,category_name,feed_url rows.
	// Ignored when Categories is non-empty.
	CategoriesFile string           `yaml:"categories_file"`
	Categories     CategoriesConfig `yaml:"categories"`

	Workers           int           `yaml:"workers"`
	Timeout           time.Duration `yaml:"timeout"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	UserAgent         string        `yaml:"user_agent"`
}

func LoadConfig(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, &ConfigError{Field: path, Reason: err.Error()}
	}
	return &cfg, nil
}

// ResolveCategories validates inline categories, or reads CategoriesFile
// when none are given inline.
func (c *FileConfig) ResolveCategories() ([]Category, error) {
	if len(c.Categories.Items) > 0 {
		out := make([]Category, 0, len(c.Categories.Items))
		for i, it := range c.Categories.Items {
			cat, err := NewCategory(it.ID, it.Name, it.URL, i+1)
			if err != nil {
				return nil, err
			}
			out = append(out, cat)
		}
		return out, nil
	}
	if strings.TrimSpace(c.CategoriesFile) == "" {
		return nil, &ConfigError{Field: "categories", Reason: "no categories configured"}
	}
	return LoadCategories(c.CategoriesFile)
}

func LoadCategories(path string) ([]Category, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Field: "categories_file", Reason: err.Error()}
	}
	defer f.Close()
	return ParseCategories(f)
}

// ParseCategories reads identifier,category_name,feed_url rows. Lines starting
// with # are comments; an optional header row is skipped.
func ParseCategories(r io.Reader) ([]Category, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []Category
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ConfigError{Field: "categories", Reason: err.Error()}
		}
		line, _ := cr.FieldPos(0)
		if len(rec) < 3 {
			return nil, &ConfigError{Line: line, Field: "row", Reason: fmt.Sprintf("expected 3 fields, got %d", len(rec))}
		}
		if len(out) == 0 && isHeaderRow(rec) {
			continue
		}
		cat, err := NewCategory(rec[0], rec[1], rec[2], line)
		if err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	if len(out) == 0 {
		return nil, &ConfigError{Field: "categories", Reason: "no categories configured"}
	}
	return out, nil
}

func isHeaderRow(rec []string) bool {
	u := strings.ToLower(strings.TrimSpace(rec[2]))
	return u == "url" || u == "feed_url"
}

// NewCategory validates one category entry. line is used for error context.
func NewCategory(id, name, feedURL string, line int) (Category, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	feedURL = strings.TrimSpace(feedURL)

	partition, err := PartitionName(name)
	if err != nil {
		return Category{}, &ConfigError{Line: line, Field: "category_name", Reason: err.Error()}
	}
	u, err := url.Parse(feedURL)
	if err != nil {
		return Category{}, &ConfigError{Line: line, Field: "feed_url", Reason: err.Error()}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Category{}, &ConfigError{Line: line, Field: "feed_url", Reason: fmt.Sprintf("%q is not an http(s) url", feedURL)}
	}
	if id == "" {
		id = name
	}
	return Category{ID: id, Name: name, FeedURL: feedURL, Partition: partition}, nil
}
