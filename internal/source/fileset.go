package source

import (
	"fmt"
	"sort"

	"fortio.org/safecast"
)

// File is one entry of a FileSet. The backend never reads source text: the
// frontend ships file names and line-start offsets inside the typed-AST
// artifact, which is enough to resolve spans to line/column positions.
type File struct {
	ID         FileID
	Name       string
	LineStarts []uint32 // byte offset of the first character of each line
}

// Position is a resolved 1-based source position.
type Position struct {
	Name string
	Line int
	Col  int
}

func (p Position) String() string {
	if p.Name == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Col)
	}
	return fmt.Sprintf("%s:%d:%d", p.Name, p.Line, p.Col)
}

// FileSet maps FileIDs to file metadata.
type FileSet struct {
	files []File
	index map[string]FileID
}

// NewFileSet creates an empty FileSet.
func NewFileSet() *FileSet {
	return &FileSet{
		files: make([]File, 0),
		index: make(map[string]FileID),
	}
}

// Add registers a file and returns its FileID. Line starts may be nil when
// the artifact was produced without position tables; positions then resolve
// to line 1 with the byte offset as the column.
func (fs *FileSet) Add(name string, lineStarts []uint32) FileID {
	lenFiles, err := safecast.Conv[uint32](len(fs.files))
	if err != nil {
		panic(fmt.Errorf("source: file count overflow: %w", err))
	}
	id := FileID(lenFiles)
	fs.files = append(fs.files, File{ID: id, Name: name, LineStarts: lineStarts})
	fs.index[name] = id
	return id
}

// Len returns the number of registered files.
func (fs *FileSet) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.files)
}

// Get returns file metadata for the given ID.
func (fs *FileSet) Get(id FileID) (*File, bool) {
	if fs == nil || int(id) >= len(fs.files) {
		return nil, false
	}
	return &fs.files[id], true
}

// Lookup returns the FileID registered under name.
func (fs *FileSet) Lookup(name string) (FileID, bool) {
	if fs == nil {
		return NoFileID, false
	}
	id, ok := fs.index[name]
	return id, ok
}

// Name returns the file name for the given ID, or "" when unknown.
func (fs *FileSet) Name(id FileID) string {
	f, ok := fs.Get(id)
	if !ok {
		return ""
	}
	return f.Name
}

// Position resolves the start of a span to a 1-based line/column pair.
func (fs *FileSet) Position(sp Span) Position {
	f, ok := fs.Get(sp.File)
	if !ok {
		return Position{Line: 1, Col: int(sp.Start) + 1}
	}
	pos := Position{Name: f.Name, Line: 1, Col: int(sp.Start) + 1}
	if len(f.LineStarts) == 0 {
		return pos
	}
	// First line start strictly greater than the offset; the line is the one
	// before it.
	idx := sort.Search(len(f.LineStarts), func(i int) bool {
		return f.LineStarts[i] > sp.Start
	})
	if idx == 0 {
		return pos
	}
	pos.Line = idx
	pos.Col = int(sp.Start-f.LineStarts[idx-1]) + 1
	return pos
}
