package feature

import "strings"

// OthersCategory collects the bytes no synonym group accounts for.
const OthersCategory = "others"

// CategoryGroup folds free-text application labels into one normalized
// category. A label belongs to the group when it contains any keyword.
type CategoryGroup struct {
	Name     string
	Keywords []string
}

// Synonyms is an ordered synonym table. Groups may overlap, so a label can
// count toward several categories.
type Synonyms []CategoryGroup

// DefaultSynonyms returns the built-in synonym table.
func DefaultSynonyms() Synonyms {
	return Synonyms{
		{Name: "game", Keywords: []string{"game", "gaming", "games"}},
		{Name: "video", Keywords: []string{"video streaming", "video", "streaming"}},
		{Name: "social", Keywords: []string{"social media", "social"}},
		{Name: "chat", Keywords: []string{"chat", "im", "instant messaging"}},
		{Name: "edu", Keywords: []string{"education", "edu", "learning"}},
		{Name: "web", Keywords: []string{"web browse", "web", "http"}},
		{Name: "dns", Keywords: []string{"dns"}},
	}
}

// Matches returns the names of every group the label belongs to, in table
// order.
func (s Synonyms) Matches(label string) []string {
	label = strings.ToLower(label)
	var names []string
	for _, group := range s {
		if group.matches(label) {
			names = append(names, group.Name)
		}
	}
	return names
}

func (g CategoryGroup) matches(lowerLabel string) bool {
	for _, kw := range g.Keywords {
		if kw != "" && strings.Contains(lowerLabel, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
