package autofix

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jingkaihe/skilldoctor/pkg/record"
	"github.com/jingkaihe/skilldoctor/pkg/validate"
	"github.com/pkg/errors"
)

// strategy builds the proposal for one (record, check) pair, or returns
// (nil, nil) when nothing can be repaired after all. Strategies never
// mutate the record they are given: header and config are re-parsed from
// the retained source bytes so a declined proposal leaves no trace.
type strategy func(rec *record.Record) (*Proposal, error)

var strategies = map[string]strategy{
	validate.CheckSlugFormat:        fixSlugFormat,
	validate.CheckDescriptionLength: fixDescriptionLength,
	validate.CheckDescriptionMarkup: fixDescriptionMarkup,
	validate.CheckDescriptionScalar: fixDescriptionScalar,
	validate.CheckConfig:            fixMissingConfig,
	validate.CheckSectionMissing:    fixMissingSections,
	validate.CheckDeadReference:     fixDeadReferences,
	validate.CheckConfigSchema:      fixConfigSchema,
	validate.CheckLegacyKeys:        fixLegacyKeys,
}

// strategyFor returns the registered strategy for a check.
func strategyFor(checkID string) (strategy, bool) {
	s, ok := strategies[checkID]
	return s, ok
}

// rewriteHeader re-parses the header from the record's source bytes, applies
// the mutation, and splices the re-encoded header onto the untouched body.
func rewriteHeader(rec *record.Record, checkID, summary string, mutate func(h *record.Header) bool) (*Proposal, error) {
	header, bodyStart, err := record.ParseHeader(rec.SkillSource)
	if err != nil {
		return nil, nil
	}
	if !mutate(header) {
		return nil, nil
	}

	encoded, err := header.Encode()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to re-encode header for %s", rec.ID())
	}

	after := string(encoded) + string(rec.SkillSource[bodyStart:])
	if after == string(rec.SkillSource) {
		return nil, nil
	}

	return &Proposal{
		Record:  rec.ID(),
		Check:   checkID,
		Path:    rec.SkillPath,
		Before:  string(rec.SkillSource),
		After:   after,
		Summary: summary,
	}, nil
}

// rewriteBody splices a new body onto the untouched header bytes.
func rewriteBody(rec *record.Record, checkID, summary, newBody string) *Proposal {
	after := string(rec.SkillSource[:rec.BodyStart]) + newBody
	if after == string(rec.SkillSource) {
		return nil
	}
	return &Proposal{
		Record:  rec.ID(),
		Check:   checkID,
		Path:    rec.SkillPath,
		Before:  string(rec.SkillSource),
		After:   after,
		Summary: summary,
	}
}

func fixSlugFormat(rec *record.Record) (*Proposal, error) {
	if rec.Header == nil {
		return nil, nil
	}
	slug := record.Slugify(rec.Header.Slug)
	if slug == "" || slug == rec.Header.Slug {
		return nil, nil
	}
	return rewriteHeader(rec, validate.CheckSlugFormat,
		fmt.Sprintf("rewrite slug %q as %q", rec.Header.Slug, slug),
		func(h *record.Header) bool {
			if record.SlugValid(h.Slug) {
				return false
			}
			h.SetSlug(slug)
			return true
		})
}

func fixDescriptionLength(rec *record.Record) (*Proposal, error) {
	return rewriteHeader(rec, validate.CheckDescriptionLength,
		fmt.Sprintf("truncate description to %d runes", record.DescriptionMaxLen),
		func(h *record.Header) bool {
			if h.DescriptionKind != record.KindScalar {
				return false
			}
			truncated := record.TruncateDescription(h.Description, record.DescriptionMaxLen)
			if truncated == h.Description {
				return false
			}
			h.SetDescription(truncated)
			return true
		})
}

func fixDescriptionMarkup(rec *record.Record) (*Proposal, error) {
	return rewriteHeader(rec, validate.CheckDescriptionMarkup,
		"strip markup tags from description",
		func(h *record.Header) bool {
			if h.DescriptionKind != record.KindScalar || !record.HasTagLike(h.Description) {
				return false
			}
			h.SetDescription(record.StripTags(h.Description))
			return true
		})
}

func fixDescriptionScalar(rec *record.Record) (*Proposal, error) {
	return rewriteHeader(rec, validate.CheckDescriptionScalar,
		"flatten description to a single value",
		func(h *record.Header) bool {
			if h.DescriptionKind != record.KindSequence && h.DescriptionKind != record.KindMapping {
				return false
			}
			h.SetDescription(h.FlattenedDescription())
			return true
		})
}

func fixMissingConfig(rec *record.Record) (*Proposal, error) {
	if rec.HasConfigFile {
		// Malformed configs are not rewritten; only absence is repairable.
		return nil, nil
	}
	synthesized, err := record.SynthesizeConfig(rec.Header, rec.DirName)
	if err != nil {
		return nil, err
	}
	return &Proposal{
		Record:  rec.ID(),
		Check:   validate.CheckConfig,
		Path:    rec.ConfigPath,
		Before:  "",
		After:   string(synthesized),
		Summary: "create a minimal skill.yaml",
	}, nil
}

func fixMissingSections(rec *record.Record) (*Proposal, error) {
	var missing []string
	for _, name := range record.MandatorySections {
		if rec.Body == nil || !rec.Body.HasSection(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	body := rec.BodyText
	if body != "" && !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	for _, name := range missing {
		body += "\n" + sectionStub(name)
	}

	return rewriteBody(rec, validate.CheckSectionMissing,
		fmt.Sprintf("append stub sections: %s", strings.Join(missing, ", ")), body), nil
}

func sectionStub(name string) string {
	title := strings.ReplaceAll(name, "_", " ")
	return record.SectionHeading(name) + "\n\nTODO: document the " + title + ".\n"
}

func fixDeadReferences(rec *record.Record) (*Proposal, error) {
	if rec.Body == nil {
		return nil, nil
	}

	dead := make(map[string]bool)
	var order []string
	for _, ref := range rec.Body.Refs {
		if dead[ref.Target] {
			continue
		}
		target := filepath.Join(rec.Dir, filepath.FromSlash(ref.Path))
		if _, err := os.Stat(target); err != nil {
			dead[ref.Target] = true
			order = append(order, ref.Target)
		}
	}
	if len(order) == 0 {
		return nil, nil
	}

	body := rec.BodyText
	for _, target := range order {
		// Unwrap [text](dead) and ![alt](dead) to their bare text.
		pattern := regexp.MustCompile(`!?\[([^\]]*)\]\(` + regexp.QuoteMeta(target) + `\)`)
		body = pattern.ReplaceAllString(body, "$1")
	}

	return rewriteBody(rec, validate.CheckDeadReference,
		fmt.Sprintf("remove dead references: %s", strings.Join(order, ", ")), body), nil
}

func fixConfigSchema(rec *record.Record) (*Proposal, error) {
	if !rec.HasConfigFile || rec.ConfigErr != nil {
		return nil, nil
	}
	cfg, err := record.ParseConfig(rec.ConfigSource)
	if err != nil {
		return nil, nil
	}

	missing := cfg.MissingRequired()
	if len(missing) == 0 {
		return nil, nil
	}
	for _, key := range missing {
		switch key {
		case "name":
			name := rec.DirName
			if rec.Header != nil && rec.Header.Slug != "" {
				name = rec.Header.Slug
			}
			cfg.SetScalar("name", name)
		case "version":
			cfg.SetScalar("version", record.BaselineVersion)
		case "category":
			cfg.SetScalar("category", record.DefaultCategory)
		}
	}

	after, err := cfg.Encode()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to re-encode config for %s", rec.ID())
	}
	return &Proposal{
		Record:  rec.ID(),
		Check:   validate.CheckConfigSchema,
		Path:    rec.ConfigPath,
		Before:  string(rec.ConfigSource),
		After:   string(after),
		Summary: fmt.Sprintf("add missing config keys: %s", strings.Join(missing, ", ")),
	}, nil
}

func fixLegacyKeys(rec *record.Record) (*Proposal, error) {
	if !rec.HasConfigFile || rec.ConfigErr != nil {
		return nil, nil
	}
	cfg, err := record.ParseConfig(rec.ConfigSource)
	if err != nil {
		return nil, nil
	}

	var renamed []string
	for _, key := range cfg.LegacyKeys() {
		canonical := record.ConfigLegacyKeys[key]
		if cfg.RenameKey(key, canonical) {
			renamed = append(renamed, fmt.Sprintf("%s -> %s", key, canonical))
		}
	}
	if len(renamed) == 0 {
		return nil, nil
	}

	after, err := cfg.Encode()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to re-encode config for %s", rec.ID())
	}
	return &Proposal{
		Record:  rec.ID(),
		Check:   validate.CheckLegacyKeys,
		Path:    rec.ConfigPath,
		Before:  string(rec.ConfigSource),
		After:   string(after),
		Summary: fmt.Sprintf("rename retired config keys: %s", strings.Join(renamed, ", ")),
	}, nil
}
