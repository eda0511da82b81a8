package blendfile

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/twinfer/blenddna/pkg/blend"
)

// Reference keys used in followed projections.
const (
	KeyRef     = "$ref"
	KeyType    = "$type"
	KeyAddress = "$address"
)

// Entry is the schema-driven projection of one structure instance.
type Entry struct {
	Code    string         `json:"code"`
	Address string         `json:"address"`
	Type    string         `json:"type"`
	Index   int            `json:"index"`
	Fields  map[string]any `json:"fields"`
}

// Dump projects every instance of the blocks matching where, or of the
// configured filter when where is empty. Pointers are hex strings unless a
// follow depth is set, in which case pointees are inlined up to that depth
// and revisited addresses become {"$ref": address}.
func (f *File) Dump(ctx context.Context, where string) ([]Entry, error) {
	if where == "" {
		where = f.opts.where
	}
	blocks, err := f.Blocks(where)
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, b := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := f.DB.Structure(b)
		if err != nil {
			return nil, err
		}
		if s.Size == 0 || s.IsPrimitive() {
			continue
		}
		recs, err := f.DB.Records(b)
		if err != nil {
			return nil, err
		}
		for i, rec := range recs {
			fields, err := rec.Map()
			if err != nil {
				return nil, fmt.Errorf("projecting block %s: %w", b, err)
			}
			fw := &follower{db: f.DB, visited: map[uint64]bool{rec.Address(): true}}
			out = append(out, Entry{
				Code:    b.Code,
				Address: blend.Address(rec.Address()).String(),
				Type:    s.Name,
				Index:   i,
				Fields:  fw.object(fields, f.opts.followDepth),
			})
		}
	}
	f.logger.DebugContext(ctx, "Dumped blocks", "blocks", len(blocks), "entries", len(out))
	f.logStats(ctx)
	return out, nil
}

// DumpJSON writes the result of Dump as indented JSON.
func (f *File) DumpJSON(ctx context.Context, w io.Writer, where string) error {
	entries, err := f.Dump(ctx, where)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

type follower struct {
	db      *blend.Database
	visited map[uint64]bool
}

func (fw *follower) object(m map[string]any, depth int) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = fw.value(v, depth)
	}
	return out
}

func (fw *follower) value(v any, depth int) any {
	switch x := v.(type) {
	case blend.Address:
		return fw.pointer(uint64(x), depth)
	case []blend.Address:
		out := make([]any, len(x))
		for i, p := range x {
			out[i] = fw.pointer(uint64(p), depth)
		}
		return out
	case map[string]any:
		return fw.object(x, depth)
	case []map[string]any:
		out := make([]any, len(x))
		for i, m := range x {
			out[i] = fw.object(m, depth)
		}
		return out
	}
	return v
}

// pointer renders one pointer. A pointer that cannot be followed stays a
// hex string.
func (fw *follower) pointer(p uint64, depth int) any {
	if p == 0 {
		return nil
	}
	ref := blend.Address(p).String()
	if depth <= 0 {
		return ref
	}
	if fw.visited[p] {
		return map[string]any{KeyRef: ref}
	}
	b, err := fw.db.Index.Locate(p)
	if err != nil {
		return ref
	}
	rec, err := fw.db.RecordAt(b, p)
	if err != nil || rec.Structure().Size == 0 || rec.Structure().IsPrimitive() {
		return ref
	}
	fields, err := rec.Map()
	if err != nil {
		return ref
	}
	fw.visited[p] = true
	out := fw.object(fields, depth-1)
	out[KeyType] = rec.Structure().Name
	out[KeyAddress] = ref
	return out
}
