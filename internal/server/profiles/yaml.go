package profiles

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/groupfiles/internal/common"
	"gopkg.in/yaml.v3"
)

// yamlProfile mirrors Profile for the override file. Pointers distinguish a
// missing field from a zero value: every field is mandatory.
type yamlProfile struct {
	ContentType           string   `yaml:"content_type"`
	MaxSizeBytes          *int64   `yaml:"max_size_bytes"`
	Category              string   `yaml:"category"`
	GeneratePreview       *bool    `yaml:"generate_preview"`
	GenerateThumbnail     *bool    `yaml:"generate_thumbnail"`
	AllowedInRealtimeChat *bool    `yaml:"allowed_in_realtime_chat"`
	Description           string   `yaml:"description"`
	Extensions            []string `yaml:"extensions"`
}

func (y yamlProfile) toProfile() (Profile, error) {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s: missing %s", common.ErrInvalidProfile, y.ContentType, field)
	}
	if y.ContentType == "" {
		return Profile{}, fmt.Errorf("%w: entry without content_type", common.ErrInvalidProfile)
	}
	if y.MaxSizeBytes == nil {
		return Profile{}, missing("max_size_bytes")
	}
	if y.GeneratePreview == nil {
		return Profile{}, missing("generate_preview")
	}
	if y.GenerateThumbnail == nil {
		return Profile{}, missing("generate_thumbnail")
	}
	if y.AllowedInRealtimeChat == nil {
		return Profile{}, missing("allowed_in_realtime_chat")
	}
	cat, err := ParseCategory(y.Category)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %s: %v", common.ErrInvalidProfile, y.ContentType, err)
	}
	return Profile{
		ContentType:           y.ContentType,
		MaxSizeBytes:          *y.MaxSizeBytes,
		Category:              cat,
		GeneratePreview:       *y.GeneratePreview,
		GenerateThumbnail:     *y.GenerateThumbnail,
		AllowedInRealtimeChat: *y.AllowedInRealtimeChat,
		Description:           y.Description,
		Extensions:            y.Extensions,
	}, nil
}

// ParseYAML decodes a policy document of the form
//
//	profiles:
//	  - content_type: image/png
//	    max_size_bytes: 15728640
//	    category: image
//	    ...
func ParseYAML(data []byte) ([]Profile, error) {
	var doc struct {
		Profiles []yamlProfile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse type policy: %w", err)
	}
	out := make([]Profile, 0, len(doc.Profiles))
	seen := make(map[string]struct{}, len(doc.Profiles))
	for _, yp := range doc.Profiles {
		p, err := yp.toProfile()
		if err != nil {
			return nil, err
		}
		ct := NormalizeContentType(p.ContentType)
		if _, dup := seen[ct]; dup {
			return nil, fmt.Errorf("%w: duplicate content type %s", common.ErrInvalidProfile, ct)
		}
		seen[ct] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// Load builds a registry from the built-in table overlaid with the profiles
// in path. Entries in the file replace built-in entries of the same content
// type. An empty path yields the defaults.
func Load(path string) (*Registry, error) {
	if path == "" {
		return New(Defaults())
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("load type policy: %w", err)
	}
	overrides, err := ParseYAML(data)
	if err != nil {
		return nil, err
	}
	return New(merge(Defaults(), overrides))
}

func merge(base, overrides []Profile) []Profile {
	idx := make(map[string]int, len(base))
	out := make([]Profile, 0, len(base)+len(overrides))
	for _, p := range base {
		idx[NormalizeContentType(p.ContentType)] = len(out)
		out = append(out, p)
	}
	for _, p := range overrides {
		ct := NormalizeContentType(p.ContentType)
		if i, ok := idx[ct]; ok {
			out[i] = p
			continue
		}
		idx[ct] = len(out)
		out = append(out, p)
	}
	return out
}
