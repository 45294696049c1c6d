package crawler

import "strings"

// SectionMapping pairs an external section identifier with its Section.
type SectionMapping struct {
	ID      string
	Section Section
}

// Sections is the crawl order. The table is fixed.
var Sections = []SectionMapping{
	{ID: "100", Section: SectionPolitics},
	{ID: "101", Section: SectionEconomy},
	{ID: "102", Section: SectionSocial},
	{ID: "105", Section: SectionTechnology},
}

// SectionByID returns the Section for an external identifier.
func SectionByID(id string) (Section, bool) {
	for _, m := range Sections {
		if m.ID == id {
			return m.Section, true
		}
	}
	return "", false
}

// DetectSection returns the first section, in table order, whose identifier
// appears in rawURL as "sid=NNN" or "/NNN/". It falls back to def.
func DetectSection(rawURL string, def Section) Section {
	for _, m := range Sections {
		if strings.Contains(rawURL, "sid="+m.ID) || strings.Contains(rawURL, "/"+m.ID+"/") {
			return m.Section
		}
	}
	return def
}
