package filenames

import (
	"context"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"tonearm/internal/catalog"
	"tonearm/internal/logging"
	"tonearm/internal/matching"
)

const (
	// TextOnlyConfidence is used when parsed text matches no catalog entry.
	TextOnlyConfidence = 0.2

	defaultMinSimilarity = 0.6
	searchLimit          = 5
)

// Template is one structural pattern for a file stem.
type Template struct {
	Name       string
	Confidence float64
	pattern    *regexp.Regexp
	// fromFolders marks templates whose artist and album come from the
	// enclosing directories.
	fromFolders bool
}

// Templates are tried in order; the first match wins.
var Templates = []Template{
	{Name: "artist-album-track-title", Confidence: 0.40, pattern: regexp.MustCompile(`^(?P<artist>.+?) - (?P<album>.+?) - (?P<track>\d{1,3}) - (?P<title>.+)$`)},
	{Name: "artist-track-title", Confidence: 0.35, pattern: regexp.MustCompile(`^(?P<artist>.+?) - (?P<track>\d{1,3}) - (?P<title>.+)$`)},
	{Name: "track-title", Confidence: 0.30, pattern: regexp.MustCompile(`^(?P<track>\d{1,3}) - (?P<title>.+)$`), fromFolders: true},
	{Name: "track-space-title", Confidence: 0.25, pattern: regexp.MustCompile(`^(?P<track>\d{1,3}) (?P<title>\D.*)$`), fromFolders: true},
	{Name: "artist-title", Confidence: 0.30, pattern: regexp.MustCompile(`^(?P<artist>.+?) - (?P<title>.+)$`)},
}

var (
	separatorRe = regexp.MustCompile(`\s*[-–—]\s+|\s+[-–—]\s*`)
	yearSuffix  = regexp.MustCompile(`\s*[\(\[]\d{4}[\)\]]\s*$`)
	yearPrefix  = regexp.MustCompile(`^[\(\[]?\d{4}[\)\]]?\s+-\s+`)
	discFolder  = regexp.MustCompile(`(?i)^(cd|disc|disk)\s*\d+$`)
)

// Parsed holds the fields a template extracted.
type Parsed struct {
	Template    Template
	Artist      string
	Album       string
	Title       string
	TrackNumber int
}

// Catalog is the search surface the parser uses.
type Catalog interface {
	Search(ctx context.Context, q catalog.Query, minScore float64, limit int) ([]catalog.Hit, error)
}

// Options configures a Parser.
type Options struct {
	// Root stops folder inference at the library directory.
	Root          string
	MinSimilarity float64
	Logger        *slog.Logger
}

// Parser produces filename candidates.
type Parser struct {
	catalog       Catalog
	root          string
	minSimilarity float64
	logger        *slog.Logger
}

// NewParser constructs a parser. A nil catalog yields text-only candidates.
func NewParser(cat Catalog, opts Options) *Parser {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	minSim := opts.MinSimilarity
	if minSim <= 0 {
		minSim = defaultMinSimilarity
	}
	root := strings.TrimSpace(opts.Root)
	if root != "" {
		root = filepath.Clean(root)
	}
	return &Parser{
		catalog:       cat,
		root:          root,
		minSimilarity: minSim,
		logger:        logging.NewComponentLogger(logger, "filenames"),
	}
}

// Parse returns candidates derived from path. An empty slice means no
// template matched.
func (p *Parser) Parse(ctx context.Context, path string) ([]matching.Candidate, error) {
	parsed, ok := p.Match(path)
	if !ok {
		p.logger.Debug("no filename template matched", logging.String("path", path))
		return []matching.Candidate{}, nil
	}

	base := matching.Candidate{
		Strategy: matching.StrategyFilename,
		Title:    parsed.Title,
		Artist:   parsed.Artist,
		Album:    parsed.Album,
	}
	base = base.WithEvidence("template", parsed.Template.Name)
	if parsed.TrackNumber > 0 {
		base = base.WithEvidence("track_number", strconv.Itoa(parsed.TrackNumber))
	}

	if p.catalog != nil {
		hits, err := p.catalog.Search(ctx, catalog.Query{
			Title:  parsed.Title,
			Artist: parsed.Artist,
			Album:  parsed.Album,
		}, p.minSimilarity, searchLimit)
		if err != nil {
			return nil, err
		}
		var out []matching.Candidate
		for _, hit := range hits {
			if hit.Score < hits[0].Score {
				break
			}
			rec := hit.Recording
			c := base
			c.RecordingID = strings.ToLower(rec.ID)
			c.ReleaseID = rec.ReleaseID
			c.ArtistID = rec.ArtistID
			c.Title = rec.Title
			c.Artist = rec.Artist
			c.Album = rec.Album
			c.DurationSeconds = rec.DurationSeconds
			c.Confidence = matching.ClampConfidence(parsed.Template.Confidence)
			c = c.WithEvidence("catalog_similarity", strconv.FormatFloat(hit.Score, 'f', 3, 64))
			out = append(out, c)
		}
		if len(out) > 0 {
			return out, nil
		}
	}

	base.Confidence = TextOnlyConfidence
	return []matching.Candidate{base.WithEvidence("catalog", "absent")}, nil
}

// Match applies the templates to path without consulting the catalog.
func (p *Parser) Match(path string) (Parsed, bool) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = normalizeStem(stem)
	if stem == "" {
		return Parsed{}, false
	}
	for _, tmpl := range Templates {
		m := tmpl.pattern.FindStringSubmatch(stem)
		if m == nil {
			continue
		}
		parsed := Parsed{Template: tmpl}
		for i, name := range tmpl.pattern.SubexpNames() {
			value := strings.TrimSpace(m[i])
			switch name {
			case "artist":
				parsed.Artist = value
			case "album":
				parsed.Album = value
			case "title":
				parsed.Title = value
			case "track":
				parsed.TrackNumber, _ = strconv.Atoi(value)
			}
		}
		if parsed.Title == "" {
			continue
		}
		if tmpl.fromFolders {
			parsed.Artist, parsed.Album = p.folderContext(path)
		}
		return parsed, true
	}
	return Parsed{}, false
}

// folderContext infers artist and album from the layout
// <artist>/<album>/<file> or <artist - album>/<file>.
func (p *Parser) folderContext(path string) (artist, album string) {
	dir := filepath.Dir(filepath.Clean(path))
	if p.isRoot(dir) {
		return "", ""
	}
	albumDir := filepath.Base(dir)
	if discFolder.MatchString(albumDir) {
		dir = filepath.Dir(dir)
		if p.isRoot(dir) {
			return "", ""
		}
		albumDir = filepath.Base(dir)
	}
	albumName := cleanFolder(albumDir)
	if parts := separatorRe.Split(albumName, 2); len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return strings.TrimSpace(parts[0]), cleanFolder(parts[1])
	}
	artistDir := filepath.Dir(dir)
	if p.isRoot(artistDir) || artistDir == dir {
		return "", albumName
	}
	return cleanFolder(filepath.Base(artistDir)), albumName
}

func (p *Parser) isRoot(dir string) bool {
	if dir == "." || dir == string(filepath.Separator) || dir == "" {
		return true
	}
	return p.root != "" && filepath.Clean(dir) == p.root
}

func normalizeStem(stem string) string {
	stem = strings.NewReplacer("_", " ", ".", " ").Replace(stem)
	stem = separatorRe.ReplaceAllString(stem, " - ")
	return strings.Join(strings.Fields(stem), " ")
}

func cleanFolder(name string) string {
	name = strings.ReplaceAll(name, "_", " ")
	name = yearSuffix.ReplaceAllString(name, "")
	name = yearPrefix.ReplaceAllString(name, "")
	return strings.Join(strings.Fields(name), " ")
}
