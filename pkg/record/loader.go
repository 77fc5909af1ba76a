package record

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/jingkaihe/skilldoctor/pkg/logger"
	"github.com/pkg/errors"
)

// DefaultBucket is the subdirectory scanned when present and no buckets are
// configured. Libraries without it are scanned at the root.
const DefaultBucket = "active"

// Loader discovers and reads skill records under a library root.
type Loader struct {
	buckets []string
	ignore  []string
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader) error

// WithBuckets sets the subdirectories to scan. "." means the root itself.
func WithBuckets(buckets ...string) LoaderOption {
	return func(l *Loader) error {
		l.buckets = buckets
		return nil
	}
}

// WithIgnoreGlobs sets doublestar patterns matched against record directory
// names and bucket-relative paths. Matching directories are skipped.
func WithIgnoreGlobs(globs ...string) LoaderOption {
	return func(l *Loader) error {
		for _, g := range globs {
			if !doublestar.ValidatePattern(g) {
				return errors.Errorf("invalid ignore pattern %q", g)
			}
		}
		l.ignore = globs
		return nil
	}
}

// NewLoader creates a loader for library discovery
func NewLoader(opts ...LoaderOption) (*Loader, error) {
	l := &Loader{}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Discover walks the configured buckets one level deep and loads every
// candidate record directory (one containing SKILL.md or skill.yaml).
// Partially readable records are returned flagged, not dropped; filesystem
// errors other than "not found" abort the run.
func (l *Loader) Discover(ctx context.Context, root string) (*Library, error) {
	log := logger.G(ctx)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve library root %s", root)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read library root %s", absRoot)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("library root %s is not a directory", absRoot)
	}

	buckets := l.buckets
	if len(buckets) == 0 {
		buckets = []string{"."}
		if exists, err := dirExists(filepath.Join(absRoot, DefaultBucket)); err != nil {
			return nil, err
		} else if exists {
			buckets = []string{DefaultBucket}
		}
	}

	lib := &Library{Root: absRoot}
	for _, bucket := range buckets {
		entries, err := os.ReadDir(filepath.Join(absRoot, bucket))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.WithField("bucket", bucket).Warn("configured bucket does not exist, skipping")
				continue
			}
			return nil, errors.Wrapf(err, "failed to read bucket %s", bucket)
		}

		for _, entry := range entries {
			name := entry.Name()
			if name == "" || name[0] == '.' {
				continue
			}

			dir := filepath.Join(absRoot, bucket, name)
			isDir, err := dirExists(dir)
			if err != nil {
				return nil, err
			}
			if !isDir {
				continue
			}

			skipped, err := l.ignored(bucket, name)
			if err != nil {
				return nil, err
			}
			if skipped {
				log.WithField("dir", dir).Debug("directory matches ignore pattern, skipping")
				continue
			}

			candidate, err := isCandidate(dir)
			if err != nil {
				return nil, err
			}
			if !candidate {
				continue
			}

			rec, err := LoadRecord(dir)
			if err != nil {
				return nil, err
			}
			lib.Records = append(lib.Records, rec)
		}
	}

	lib.sort()
	log.WithFields(map[string]interface{}{
		"root":    absRoot,
		"records": len(lib.Records),
	}).Debug("library discovery complete")
	return lib, nil
}

func (l *Loader) ignored(bucket, name string) (bool, error) {
	rel := name
	if bucket != "." {
		rel = path.Join(filepath.ToSlash(bucket), name)
	}
	for _, g := range l.ignore {
		for _, target := range []string{name, rel} {
			ok, err := doublestar.Match(g, target)
			if err != nil {
				return false, errors.Wrapf(err, "invalid ignore pattern %q", g)
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// LoadRecord reads one record directory. Missing files and parse failures
// are recorded on the returned Record; only I/O errors are returned.
func LoadRecord(dir string) (*Record, error) {
	rec := &Record{
		Dir:        dir,
		DirName:    filepath.Base(dir),
		SkillPath:  filepath.Join(dir, SkillFileName),
		ConfigPath: filepath.Join(dir, ConfigFileName),
	}

	src, err := os.ReadFile(rec.SkillPath)
	switch {
	case err == nil:
		rec.HasSkillFile = true
		rec.SkillSource = src
		header, bodyStart, parseErr := ParseHeader(src)
		rec.Header = header
		rec.HeaderErr = parseErr
		rec.BodyStart = bodyStart
		rec.BodyText = string(src[bodyStart:])
		if len(rec.BodyText) > 0 {
			rec.Body = ParseBody(src[bodyStart:])
		}
	case errors.Is(err, fs.ErrNotExist):
		// Reported as a finding, not an error.
	default:
		return nil, errors.Wrapf(err, "failed to read %s", rec.SkillPath)
	}

	cfgSrc, err := os.ReadFile(rec.ConfigPath)
	switch {
	case err == nil:
		rec.HasConfigFile = true
		rec.ConfigSource = cfgSrc
		cfg, parseErr := ParseConfig(cfgSrc)
		if parseErr != nil {
			rec.ConfigErr = parseErr
		} else {
			rec.Config = cfg
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, errors.Wrapf(err, "failed to read %s", rec.ConfigPath)
	}

	return rec, nil
}

func dirExists(p string) (bool, error) {
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to stat %s", p)
	}
	return info.IsDir(), nil
}

func isCandidate(dir string) (bool, error) {
	for _, f := range []string{SkillFileName, ConfigFileName} {
		if _, err := os.Stat(filepath.Join(dir, f)); err == nil {
			return true, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, errors.Wrapf(err, "failed to stat %s", filepath.Join(dir, f))
		}
	}
	return false, nil
}
