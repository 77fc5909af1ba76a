package validate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jingkaihe/skilldoctor/pkg/record"
	"github.com/pkg/errors"
)

// contentChecks runs layer 2 against one recoverable record.
func contentChecks(rec *record.Record, opts Options, col *collector) {
	body := rec.Body

	col.run(CheckSectionMissing, func() []Finding {
		var findings []Finding
		for _, name := range record.MandatorySections {
			if body == nil || !body.HasSection(name) {
				findings = append(findings, col.finding(CheckSectionMissing,
					fmt.Sprintf("mandatory section %q is missing", name)))
			}
		}
		return findings
	})

	col.run(CheckBodyLength, func() []Finding {
		if body != nil && body.Lines > opts.BodyLineLimit {
			return col.fail(CheckBodyLength,
				fmt.Sprintf("body is %d lines, advisory limit is %d", body.Lines, opts.BodyLineLimit))
		}
		return nil
	})

	col.run(CheckDeadReference, func() []Finding {
		if body == nil {
			return nil
		}
		var findings []Finding
		for _, ref := range body.Refs {
			target := filepath.Join(rec.Dir, filepath.FromSlash(ref.Path))
			if _, err := os.Stat(target); err != nil {
				reason := "does not resolve"
				if !errors.Is(err, fs.ErrNotExist) {
					reason = fmt.Sprintf("cannot be read: %v", err)
				}
				findings = append(findings, col.finding(CheckDeadReference,
					fmt.Sprintf("reference %q %s", ref.Target, reason)))
			}
		}
		return findings
	})

	col.run(CheckDirNaming, func() []Finding {
		return dirNamingFinding(rec, opts.DirSuffix, col)
	})
}

func dirNamingFinding(rec *record.Record, suffix string, col *collector) []Finding {
	name := rec.DirName

	if !record.SlugValid(name) {
		return col.fail(CheckDirNaming,
			fmt.Sprintf("directory name %q is not slug-shaped", name))
	}
	if suffix != "" && !strings.HasSuffix(name, suffix) {
		return col.fail(CheckDirNaming,
			fmt.Sprintf("directory name %q lacks the %q suffix", name, suffix))
	}
	if rec.Header != nil && rec.Header.Slug != "" {
		stem := strings.TrimSuffix(name, suffix)
		if stem != rec.Header.Slug {
			return col.fail(CheckDirNaming,
				fmt.Sprintf("directory name %q does not match slug %q", name, rec.Header.Slug))
		}
	}
	return nil
}
