package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tag is a classification label attached to an accepted transfer.
type Tag uint8

const (
	TagMint Tag = 1 << iota
	TagBurn
	TagLargeAmount
	TagDirectedMatch
)

var tagNames = []struct {
	tag  Tag
	name string
}{
	{TagMint, "mint"},
	{TagBurn, "burn"},
	{TagLargeAmount, "large_amount"},
	{TagDirectedMatch, "directed_match"},
}

func (t Tag) String() string {
	for _, tn := range tagNames {
		if tn.tag == t {
			return tn.name
		}
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// TagSet is a set of tags. The empty set is a plain transfer.
type TagSet uint8

func (s TagSet) Has(tag Tag) bool {
	return uint8(s)&uint8(tag) != 0
}

func (s TagSet) With(tag Tag) TagSet {
	return TagSet(uint8(s) | uint8(tag))
}

func (s TagSet) Empty() bool {
	return s == 0
}

// Names returns the tag names in a stable order.
func (s TagSet) Names() []string {
	names := make([]string, 0, len(tagNames))
	for _, tn := range tagNames {
		if s.Has(tn.tag) {
			names = append(names, tn.name)
		}
	}
	return names
}

func (s TagSet) String() string {
	if s.Empty() {
		return "plain"
	}
	return strings.Join(s.Names(), ",")
}

// MarshalJSON encodes the set as a list of tag names.
func (s TagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// UnmarshalJSON decodes a list of tag names.
func (s *TagSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var out TagSet
	for _, name := range names {
		found := false
		for _, tn := range tagNames {
			if tn.name == name {
				out = out.With(tn.tag)
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown tag %q", name)
		}
	}
	*s = out
	return nil
}
