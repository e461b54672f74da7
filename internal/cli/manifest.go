package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/maauso/clipstitch/internal/encode"
	"github.com/maauso/clipstitch/internal/media"
)

var (
	errNoSources    = errors.New("manifest: at least one source is required")
	errBadTrimRange = errors.New("manifest: trim end must be after start")
)

// Manifest describes a merge job read from YAML.
//
//	output: holiday.mp4
//	format:
//	  container: mov
//	trim:
//	  start: 2
//	  end: 30
//	sources:
//	  - path: beach.mp4
//	    created_at: 2024-07-01T10:00:00Z
//	  - path: sunset.jpg
type Manifest struct {
	Output  string        `yaml:"output"`
	Format  encode.Format `yaml:"format"`
	Trim    *TrimSpec     `yaml:"trim"`
	Sources []SourceSpec  `yaml:"sources"`
}

// TrimSpec is a trim range in seconds.
type TrimSpec struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
}

// Range converts the spec to timeline ticks.
func (t TrimSpec) Range() media.TrimRange {
	return media.TrimRange{Start: media.FromSeconds(t.Start), End: media.FromSeconds(t.End)}
}

// SourceSpec is one manifest source. Kind is inferred from the file
// extension when omitted.
type SourceSpec struct {
	ID        string     `yaml:"id"`
	Kind      string     `yaml:"kind"`
	Path      string     `yaml:"path"`
	CreatedAt *time.Time `yaml:"created_at"`
	Duration  float64    `yaml:"duration"`
}

// LoadManifest reads a manifest file. Relative source and output paths are
// resolved against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseManifest(f, filepath.Dir(path))
}

// ParseManifest decodes and validates a manifest.
func ParseManifest(r io.Reader, baseDir string) (*Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if len(m.Sources) == 0 {
		return nil, errNoSources
	}

	for i := range m.Sources {
		s := &m.Sources[i]
		if s.Path == "" {
			return nil, fmt.Errorf("manifest: source %d has no path", i)
		}
		s.Path = resolve(baseDir, s.Path)
		if s.Kind == "" {
			s.Kind = string(kindFromPath(s.Path))
		}
		if !media.Kind(s.Kind).IsValid() {
			return nil, fmt.Errorf("manifest: source %d has unknown kind %q", i, s.Kind)
		}
		if s.Duration < 0 {
			return nil, fmt.Errorf("manifest: source %d has negative duration", i)
		}
	}
	if m.Output != "" {
		m.Output = resolve(baseDir, m.Output)
	}
	if m.Trim != nil && (m.Trim.Start < 0 || m.Trim.End <= m.Trim.Start) {
		return nil, errBadTrimRange
	}
	return &m, nil
}

// ExportFormat returns the manifest format, or nil to use the configured one.
func (m *Manifest) ExportFormat() *encode.Format {
	if m.Format == (encode.Format{}) {
		return nil
	}
	f := m.Format
	return &f
}

// MediaSources converts the manifest sources.
func (m *Manifest) MediaSources() []media.Source {
	out := make([]media.Source, 0, len(m.Sources))
	for i, s := range m.Sources {
		id := s.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", strings.TrimSuffix(filepath.Base(s.Path), filepath.Ext(s.Path)), i)
		}
		if media.Kind(s.Kind) == media.KindStill {
			out = append(out, media.Still{ID: id, Path: s.Path, CreatedAt: s.CreatedAt})
			continue
		}
		out = append(out, media.Clip{
			ID:              id,
			Path:            s.Path,
			NaturalDuration: media.FromSeconds(s.Duration),
			CreatedAt:       s.CreatedAt,
		})
	}
	return out
}

// SourcesFromPaths builds sources for files named on the command line.
func SourcesFromPaths(paths []string) []media.Source {
	specs := make([]SourceSpec, len(paths))
	for i, p := range paths {
		specs[i] = SourceSpec{Path: p, Kind: string(kindFromPath(p))}
	}
	return (&Manifest{Sources: specs}).MediaSources()
}

var stillExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true,
}

func kindFromPath(path string) media.Kind {
	if stillExts[strings.ToLower(filepath.Ext(path))] {
		return media.KindStill
	}
	return media.KindClip
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
