// Package blend is the decode engine for files that carry their own schema.
// A Database indexes the blocks of one file, resolves in-file pointers to
// shared objects through a per-session cache, and exposes the field access
// layer that per-type converters are written against.
//
// A Database is not safe for concurrent use. Concurrent decodes need one
// Database each.
package blend

import (
	"fmt"
	"log/slog"

	"golang.org/x/text/encoding"

	"github.com/twinfer/blenddna/pkg/dna"
	"github.com/twinfer/blenddna/pkg/stream"
)

type options struct {
	logger   *slog.Logger
	registry *Registry
	charset  encoding.Encoding
	generic  bool
}

func defaultOptions() *options {
	return &options{
		logger:   slog.Default(),
		registry: NewRegistry(),
	}
}

// Option configures a Database.
type Option func(*options)

// WithLogger sets the logger used for policy warnings and debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegistry sets the converters used to materialize pointees.
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithCharset sets the encoding of char array strings. Without it strings
// are returned as raw bytes.
func WithCharset(enc encoding.Encoding) Option {
	return func(o *options) {
		o.charset = enc
	}
}

// WithGenericFallback decodes types without a registered converter into
// *Generic field maps when the read accepts them.
func WithGenericFallback(enabled bool) Option {
	return func(o *options) {
		o.generic = enabled
	}
}

// Database is one decode session over one file.
type Database struct {
	Catalog *dna.Catalog
	Index   *BlockIndex

	cursor   *stream.Cursor
	cache    *ObjectCache
	registry *Registry
	logger   *slog.Logger
	charset  encoding.Encoding
	generic  bool
	stats    Statistics
}

// Load scans data, which starts at the first block header, and builds the
// catalog and block index. Nothing is decoded until a root is resolved.
func Load(data []byte, layout stream.Layout, opts ...Option) (*Database, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	c := stream.NewCursor(data, layout)
	index, catalog, err := ScanBlocks(c)
	if err != nil {
		return nil, err
	}

	db := &Database{
		Catalog:  catalog,
		Index:    index,
		cursor:   c,
		cache:    newObjectCache(),
		registry: o.registry,
		logger:   o.logger,
		charset:  o.charset,
		generic:  o.generic,
	}
	db.stats.BlocksRead = index.Len()

	o.logger.Debug("Loaded file",
		"layout", layout.String(),
		"blocks", index.Len(),
		"structures", catalog.Len(),
		"fields", catalog.FieldCount(),
	)
	return db, nil
}

// Layout returns the pointer width and byte order of the file.
func (db *Database) Layout() stream.Layout { return db.cursor.Layout() }

// Logger returns the session logger.
func (db *Database) Logger() *slog.Logger { return db.logger }

// Registry returns the converters of this session.
func (db *Database) Registry() *Registry { return db.registry }

// Cache returns the session object cache.
func (db *Database) Cache() *ObjectCache { return db.cache }

// Stats returns the counters collected so far.
func (db *Database) Stats() Statistics {
	s := db.stats
	s.CachedObjects = db.cache.Len()
	return s
}

// Payload returns the raw bytes of a block.
func (db *Database) Payload(b Block) ([]byte, error) {
	defer db.cursor.Save()()
	if err := db.cursor.SeekTo(b.Start); err != nil {
		return nil, err
	}
	return db.cursor.Bytes(int(b.Size))
}

// Bytes returns n raw bytes at an absolute offset, as returned by FileOffset.
func (db *Database) Bytes(offset int64, n int) ([]byte, error) {
	defer db.cursor.Save()()
	if err := db.cursor.SeekTo(offset); err != nil {
		return nil, err
	}
	return db.cursor.Bytes(n)
}

// Structure returns the schema structure stored in a block.
func (db *Database) Structure(b Block) (*dna.Structure, error) {
	s, err := db.Catalog.At(int(b.SDNAIndex))
	if err != nil {
		return nil, fmt.Errorf("%w: block %s: %v", ErrPointer, b, err)
	}
	return s, nil
}

// RecordAt returns the record for the instance at ptr inside block b.
func (db *Database) RecordAt(b Block, ptr uint64) (Record, error) {
	s, err := db.Structure(b)
	if err != nil {
		return Record{}, err
	}
	return db.recordAt(s, b, ptr)
}

// Records returns one record per instance stored in b.
func (db *Database) Records(b Block) ([]Record, error) {
	s, err := db.Structure(b)
	if err != nil {
		return nil, err
	}
	n := instances(s, b, b.Address)
	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		r, err := db.recordAt(s, b, b.Address+uint64(i)*s.Size)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (db *Database) recordAt(s *dna.Structure, b Block, ptr uint64) (Record, error) {
	off := ptr - b.Address
	if off+s.Size > b.Size {
		return Record{}, fmt.Errorf("%w: %s at %#x overruns block %s", ErrPointer, s.Name, ptr, b)
	}
	return Record{db: db, s: s, start: b.Start + int64(off), addr: ptr}, nil
}

// instances returns how many instances of s a read starting at ptr sees.
func instances(s *dna.Structure, b Block, ptr uint64) int {
	if s.Size == 0 {
		return 0
	}
	if ptr == b.Address && b.Count > 0 && uint64(b.Count)*s.Size <= b.Size {
		return int(b.Count)
	}
	return int((b.End() - ptr) / s.Size)
}

func (db *Database) slot(s *dna.Structure) int {
	if s.CacheSlot() < 0 {
		return s.AssignCacheSlot(db.Catalog.NextCacheSlot())
	}
	return s.CacheSlot()
}

func (db *Database) converter(typeName string) (Converter, bool) {
	if c, ok := db.registry.Get(typeName); ok {
		return c, true
	}
	if db.generic {
		return genericConverter, true
	}
	return Converter{}, false
}
