package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jingkaihe/skilldoctor/pkg/record"
)

// Unrecoverable reports whether a record is too broken for content and
// integration checks: SKILL.md or its header is unreadable, the body is
// empty, or a present config file does not parse. A missing config alone is
// recoverable since one can be synthesized.
func Unrecoverable(rec *record.Record) bool {
	if !rec.HasSkillFile || rec.HeaderErr != nil {
		return true
	}
	if strings.TrimSpace(rec.BodyText) == "" {
		return true
	}
	if rec.ConfigErr != nil {
		return true
	}
	return false
}

// structuralChecks runs layer 1 against one record. Header field checks are
// skipped when the header itself never parsed; file existence checks always
// run.
func structuralChecks(rec *record.Record, col *collector) {
	col.run(CheckHeaderMissing, func() []Finding {
		if !rec.HasSkillFile {
			return col.fail(CheckHeaderMissing, "SKILL.md does not exist")
		}
		if rec.HeaderErr != nil {
			return col.fail(CheckHeaderMissing, rec.HeaderErr.Error())
		}
		return nil
	})

	if rec.Header != nil {
		headerChecks(rec, col)
	}

	if rec.HasSkillFile {
		col.run(CheckBodyMissing, func() []Finding {
			if strings.TrimSpace(rec.BodyText) == "" {
				return col.fail(CheckBodyMissing, "SKILL.md has no body after the header")
			}
			return nil
		})
	}

	col.run(CheckConfig, func() []Finding {
		if !rec.HasConfigFile {
			return col.fail(CheckConfig, "skill.yaml does not exist")
		}
		if rec.ConfigErr != nil {
			f := col.fail(CheckConfig, rec.ConfigErr.Error())
			f[0].Fixable = false
			return f
		}
		return nil
	})
}

func headerChecks(rec *record.Record, col *collector) {
	h := rec.Header

	col.run(CheckSlugMissing, func() []Finding {
		if h.Slug == "" {
			return col.fail(CheckSlugMissing, "header has no slug")
		}
		return nil
	})

	col.run(CheckSlugFormat, func() []Finding {
		if h.Slug == "" || record.SlugValid(h.Slug) {
			return nil
		}
		if len(h.Slug) > record.SlugMaxLen {
			return col.fail(CheckSlugFormat,
				fmt.Sprintf("slug %q exceeds %d characters", h.Slug, record.SlugMaxLen))
		}
		return col.fail(CheckSlugFormat,
			fmt.Sprintf("slug %q is not lowercase alphanumeric with dashes", h.Slug))
	})

	col.run(CheckDescriptionMissing, func() []Finding {
		if h.DescriptionKind == record.KindAbsent ||
			(h.DescriptionKind == record.KindScalar && strings.TrimSpace(h.Description) == "") {
			return col.fail(CheckDescriptionMissing, "header has no description")
		}
		return nil
	})

	col.run(CheckDescriptionLength, func() []Finding {
		if h.DescriptionKind != record.KindScalar {
			return nil
		}
		if n := utf8.RuneCountInString(h.Description); n > record.DescriptionMaxLen {
			return col.fail(CheckDescriptionLength,
				fmt.Sprintf("description is %d runes, limit %d", n, record.DescriptionMaxLen))
		}
		return nil
	})

	col.run(CheckDescriptionMarkup, func() []Finding {
		if h.DescriptionKind == record.KindScalar && record.HasTagLike(h.Description) {
			return col.fail(CheckDescriptionMarkup, "description contains markup-like tags")
		}
		return nil
	})

	col.run(CheckDescriptionScalar, func() []Finding {
		switch h.DescriptionKind {
		case record.KindSequence:
			return col.fail(CheckDescriptionScalar, "description is a list, expected a single value")
		case record.KindMapping:
			return col.fail(CheckDescriptionScalar, "description is a mapping, expected a single value")
		}
		return nil
	})

	col.run(CheckUnknownKeys, func() []Finding {
		if len(h.UnknownKeys) == 0 {
			return nil
		}
		return col.fail(CheckUnknownKeys,
			fmt.Sprintf("header carries unrecognized keys: %s", strings.Join(h.UnknownKeys, ", ")))
	})
}
