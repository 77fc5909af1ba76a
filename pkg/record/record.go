// Package record models skill records on disk: the SKILL.md header and body
// plus the sibling skill.yaml config. It owns discovery and parsing; rule
// checking lives in pkg/validate and repairs in pkg/autofix.
//
// A skill record is a directory shaped like:
//
//	voice-ai-skill/
//	├── SKILL.md      header block (--- delimited YAML) followed by the body
//	├── skill.yaml    structured config (name, version, category, ...)
//	└── templates/    optional auxiliary files referenced from the body
package record

import "sort"

// SkillFileName is the per-record header+body file.
const SkillFileName = "SKILL.md"

// ConfigFileName is the per-record sibling config file.
const ConfigFileName = "skill.yaml"

// Record is one partially-loaded skill record. Missing or malformed parts
// are tagged rather than dropped so every record can be reported on.
type Record struct {
	Dir     string // absolute path to the record directory
	DirName string // directory basename

	SkillPath  string
	ConfigPath string

	// SKILL.md
	HasSkillFile bool
	SkillSource  []byte  // full file content, nil when the file is missing
	Header       *Header // nil when the header block failed to parse
	HeaderErr    error   // classification of the header parse failure
	BodyStart    int     // byte offset into SkillSource where the body begins
	BodyText     string  // content after the closing header delimiter
	Body         *Body   // parsed body, nil when there is no body text

	// skill.yaml
	HasConfigFile bool
	ConfigSource  []byte  // full file content, nil when the file is missing
	Config        *Config // nil when the file is missing or malformed
	ConfigErr     error   // parse failure for a present config file
}

// ID returns the identity used in findings and reports: the header slug when
// one parsed, otherwise the directory name.
func (r *Record) ID() string {
	if r.Header != nil && r.Header.Slug != "" {
		return r.Header.Slug
	}
	return r.DirName
}

// HasBody reports whether any body content was read.
func (r *Record) HasBody() bool {
	return len(r.BodyText) > 0
}

// Library is the full set of records for one scan. It is a plain value
// handed to each validator; nothing in this package keeps global state, so
// independent scans never observe each other.
type Library struct {
	Root    string
	Records []*Record
}

// Get returns the record whose ID matches, or nil.
func (l *Library) Get(id string) *Record {
	for _, r := range l.Records {
		if r.ID() == id {
			return r
		}
	}
	return nil
}

// Slugs returns the set of parsed slugs, each mapped to the records that
// carry it. Records without a parsed slug are absent.
func (l *Library) Slugs() map[string][]*Record {
	slugs := make(map[string][]*Record)
	for _, r := range l.Records {
		if r.Header != nil && r.Header.Slug != "" {
			slugs[r.Header.Slug] = append(slugs[r.Header.Slug], r)
		}
	}
	return slugs
}

// Replace swaps a record for its freshly reloaded version, matching by
// directory path. Used by the auto-fix engine after writing a record.
func (l *Library) Replace(fresh *Record) {
	for i, r := range l.Records {
		if r.Dir == fresh.Dir {
			l.Records[i] = fresh
			return
		}
	}
	l.Records = append(l.Records, fresh)
	l.sort()
}

func (l *Library) sort() {
	sort.Slice(l.Records, func(i, j int) bool {
		return l.Records[i].DirName < l.Records[j].DirName
	})
}
