package scene

import (
	"fmt"

	"github.com/twinfer/blenddna/pkg/blend"
)

// ID is the header shared by every named data block. Name starts with a two
// letter code of the owning type, such as "OB" or "ME".
type ID struct {
	blend.Meta
	Name string
	Flag int16
}

// DisplayName returns Name without its type code.
func (id *ID) DisplayName() string {
	if len(id.Name) < 2 {
		return id.Name
	}
	return id.Name[2:]
}

func decodeID(r blend.Record, id *ID) error {
	if err := r.String(blend.Warn, "name", &id.Name); err != nil {
		return err
	}
	return r.Short(blend.Ignore, "flag", &id.Flag)
}

// ListBase is the head of an intrusive doubly linked list. Its ends are
// runtime-typed, so they hold whatever the referenced blocks decode to.
type ListBase struct {
	blend.Meta
	First blend.Object
	Last  blend.Object
}

func decodeListBase(r blend.Record, l *ListBase) error {
	if err := blend.ReadAnyPtr(r, blend.Ignore, "*first", &l.First); err != nil {
		return err
	}
	return blend.ReadAnyPtr(r, blend.Ignore, "*last", &l.Last)
}

// PackedFile is a file embedded in the document. Data is the absolute buffer
// offset of its contents, or 0 when nothing is packed.
type PackedFile struct {
	blend.Meta
	Size int32
	Seek int32
	Data int64
}

func decodePackedFile(r blend.Record, p *PackedFile) error {
	if err := r.Int(blend.Warn, "size", &p.Size); err != nil {
		return err
	}
	if err := r.Int(blend.Warn, "seek", &p.Seek); err != nil {
		return err
	}
	return r.FileOffset(blend.Warn, "*data", &p.Data)
}

// Contents returns the packed bytes.
func (p *PackedFile) Contents(db *blend.Database) ([]byte, error) {
	if p.Data == 0 || p.Size <= 0 {
		return nil, nil
	}
	data, err := db.Bytes(p.Data, int(p.Size))
	if err != nil {
		return nil, fmt.Errorf("reading packed file: %w", err)
	}
	return data, nil
}
