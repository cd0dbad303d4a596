package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cleared-dev/tally/internal/category"
	"github.com/cleared-dev/tally/internal/model"
	"github.com/cleared-dev/tally/internal/tokenizer"
)

// Parser converts one institution's export file into canonical transactions.
// Implementations are pure: no I/O and no state shared between calls.
type Parser interface {
	Institution() Institution
	Parse(content []byte, filename string) (*model.ParseOutcome, error)
}

// Layout is the fixed shape of an institution's export.
type Layout struct {
	HeaderRows int
	FooterRows int
	MinFields  int
}

func (l Layout) options() tokenizer.Options {
	return tokenizer.Options{HeaderRows: l.HeaderRows, FooterRows: l.FooterRows}
}

// Options carries per-user settings some parsers need.
type Options struct {
	// VenmoOwner is the statement owner's display name. When empty the
	// Venmo parser works it out from each statement's payments.
	VenmoOwner string
}

// Registry maps institutions to parsers. Build it once at startup.
type Registry struct {
	parsers map[Institution]Parser
}

// FileInfo describes an export file waiting in the import directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[Institution]Parser)}
}

// Register adds a parser. Panics on a duplicate institution.
func (r *Registry) Register(p Parser) {
	inst := p.Institution()
	if _, ok := r.parsers[inst]; ok {
		panic("duplicate parser for institution: " + inst.String())
	}
	r.parsers[inst] = p
}

// Get returns the parser for inst, or nil.
func (r *Registry) Get(inst Institution) Parser {
	return r.parsers[inst]
}

// NewDefaultRegistry returns a registry with every built-in parser.
func NewDefaultRegistry(tables category.Tables, opts Options) *Registry {
	r := NewRegistry()
	r.Register(NewAmexParser(tables))
	r.Register(NewCITParser(tables))
	r.Register(NewWellsFargoParser(tables))
	r.Register(NewBiltParser(tables))
	r.Register(NewTargetParser(tables))
	r.Register(NewVenmoParser(tables, opts.VenmoOwner))
	r.Register(NewVanguardParser(tables))
	r.Register(NewChaseParser(tables))
	return r
}

// ProcessedDir is the subdirectory of the import dir that handled files
// are moved into.
const ProcessedDir = "processed"

// Extensions lists the file types Scan picks up.
var Extensions = []string{".csv", ".xlsx", ".ofx", ".qfx"}

// Scan returns the export files directly inside dir. A missing dir holds
// no files.
func Scan(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() || !supported(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

func supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// MarkProcessed moves a file from dir to dir/processed/.
func MarkProcessed(dir, fileName string) error {
	src := filepath.Join(dir, fileName)
	dstDir := filepath.Join(dir, ProcessedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}
