package profiles

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/groupfiles/internal/common"
)

// Registry is an immutable content-type → Profile table. It is built once at
// startup and shared read-only between concurrent ingestion runs.
type Registry struct {
	byType map[string]Profile
	byExt  map[string]string
}

// New validates the given profiles and builds a registry. Every content type
// must appear exactly once.
func New(list []Profile) (*Registry, error) {
	r := &Registry{
		byType: make(map[string]Profile, len(list)),
		byExt:  make(map[string]string),
	}
	for _, p := range list {
		p.ContentType = NormalizeContentType(p.ContentType)
		if err := validate(p); err != nil {
			return nil, err
		}
		if _, dup := r.byType[p.ContentType]; dup {
			return nil, fmt.Errorf("%w: duplicate content type %s", common.ErrInvalidProfile, p.ContentType)
		}
		p = p.clone()
		for i, ext := range p.Extensions {
			ext = normalizeExt(ext)
			p.Extensions[i] = ext
			if _, taken := r.byExt[ext]; !taken {
				r.byExt[ext] = p.ContentType
			}
		}
		r.byType[p.ContentType] = p
	}
	return r, nil
}

// Default returns a registry built from the built-in table.
func Default() *Registry {
	r, err := New(Defaults())
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns a copy of the profile registered for contentType.
func (r *Registry) Lookup(contentType string) (Profile, bool) {
	p, ok := r.byType[NormalizeContentType(contentType)]
	if !ok {
		return Profile{}, false
	}
	return p.clone(), true
}

// LookupByExtension resolves a profile from a file name or extension.
func (r *Registry) LookupByExtension(name string) (Profile, bool) {
	ext := normalizeExt(filepath.Ext(name))
	if ext == "" {
		ext = normalizeExt(name)
	}
	ct, ok := r.byExt[ext]
	if !ok {
		return Profile{}, false
	}
	return r.Lookup(ct)
}

// Len returns the number of registered content types.
func (r *Registry) Len() int {
	return len(r.byType)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func validate(p Profile) error {
	switch {
	case p.ContentType == "":
		return fmt.Errorf("%w: empty content type", common.ErrInvalidProfile)
	case p.MaxSizeBytes <= 0:
		return fmt.Errorf("%w: %s: max size must be positive", common.ErrInvalidProfile, p.ContentType)
	case !p.Category.Valid():
		return fmt.Errorf("%w: %s: invalid category", common.ErrInvalidProfile, p.ContentType)
	case strings.TrimSpace(p.Description) == "":
		return fmt.Errorf("%w: %s: missing description", common.ErrInvalidProfile, p.ContentType)
	case len(p.Extensions) == 0:
		return fmt.Errorf("%w: %s: missing extensions", common.ErrInvalidProfile, p.ContentType)
	}
	return nil
}
