package pipeline

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Vocabulary is the closed set of gift-category tags the merge stage may
// assign. Retrieval matches catalog rows on these tags, so free-form model
// inventions are filtered out against it.
type Vocabulary struct {
	Categories []string `yaml:"categories"`

	lookup map[string]string
}

// DefaultVocabulary returns the built-in category set used when no
// vocabulary file is configured.
func DefaultVocabulary() *Vocabulary {
	v := &Vocabulary{Categories: []string{
		"science", "building", "arts_crafts", "books", "games", "puzzles",
		"outdoor", "sports", "music", "electronics", "dolls_figures",
		"vehicles", "animals", "cooking", "fashion", "collectibles",
	}}
	v.buildLookup()
	return v
}

// LoadVocabulary reads a category vocabulary from a YAML file.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vocab: read %s", path)
	}

	// The YAML has a top-level "vocabulary" key.
	var wrapper struct {
		Vocabulary Vocabulary `yaml:"vocabulary"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "vocab: parse")
	}

	v := &wrapper.Vocabulary
	if len(v.Categories) == 0 {
		return nil, eris.Errorf("vocab: no categories in %s", path)
	}
	v.buildLookup()
	return v, nil
}

func (v *Vocabulary) buildLookup() {
	v.lookup = make(map[string]string, len(v.Categories))
	for _, c := range v.Categories {
		v.lookup[normalizeTag(c)] = c
	}
}

// Constrain filters tags down to vocabulary members, normalizing case and
// whitespace. Order is preserved and duplicates are dropped. A nil
// vocabulary passes tags through untouched.
func (v *Vocabulary) Constrain(tags []string) []string {
	if v == nil || len(v.lookup) == 0 {
		return tags
	}
	var out []string
	seen := make(map[string]bool)
	for _, tag := range tags {
		canonical, ok := v.lookup[normalizeTag(tag)]
		if !ok || seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, canonical)
	}
	return out
}

func normalizeTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	tag = strings.ReplaceAll(tag, " ", "_")
	tag = strings.ReplaceAll(tag, "-", "_")
	return tag
}
