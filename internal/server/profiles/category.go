package profiles

import (
	"fmt"
	"strings"
)

// Category is the coarse classification that decides which processor
// handles an upload. The set is closed: adding a value means touching the
// dispatcher's switch as well.
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryDocument
	CategoryText
	CategoryImage
	CategoryAudio
	CategoryVideo
	CategoryArchive
	CategoryCode
	CategoryPresentation
)

var categoryNames = [...]string{
	CategoryUnknown:      "unknown",
	CategoryDocument:     "document",
	CategoryText:         "text",
	CategoryImage:        "image",
	CategoryAudio:        "audio",
	CategoryVideo:        "video",
	CategoryArchive:      "archive",
	CategoryCode:         "code",
	CategoryPresentation: "presentation",
}

// Categories lists every valid category in declaration order.
func Categories() []Category {
	return []Category{
		CategoryDocument, CategoryText, CategoryImage, CategoryAudio,
		CategoryVideo, CategoryArchive, CategoryCode, CategoryPresentation,
	}
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c > CategoryUnknown && c <= CategoryPresentation
}

// ParseCategory maps a category name to its value.
func ParseCategory(s string) (Category, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories() {
		if categoryNames[c] == name {
			return c, nil
		}
	}
	return CategoryUnknown, fmt.Errorf("unknown category %q", s)
}
