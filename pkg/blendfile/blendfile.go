package blendfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/twinfer/blenddna/internal/query"
	"github.com/twinfer/blenddna/pkg/blend"
	"github.com/twinfer/blenddna/pkg/scene"
)

// DefaultRootType is the structure Root resolves when no root type is set.
const DefaultRootType = "Scene"

type options struct {
	logger      *slog.Logger
	registry    *blend.Registry
	charset     string
	generic     bool
	followDepth int
	where       string
	rootType    string
}

// Option configures Open.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegistry adds converters on top of the scene converters.
func WithRegistry(reg *blend.Registry) Option {
	return func(o *options) {
		if reg != nil {
			o.registry.Merge(reg)
		}
	}
}

// WithCharset sets the encoding of strings stored in the file, by WHATWG
// name or label ("utf-8", "latin1", "windows-1252"). Empty keeps raw bytes.
func WithCharset(name string) Option {
	return func(o *options) {
		o.charset = name
	}
}

// WithGenericFallback decodes structures without a converter into field maps.
func WithGenericFallback(enabled bool) Option {
	return func(o *options) {
		o.generic = enabled
	}
}

// WithFollowDepth makes Dump follow pointers up to depth levels deep.
func WithFollowDepth(depth int) Option {
	return func(o *options) {
		o.followDepth = max(depth, 0)
	}
}

// WithFilter sets the default block filter of Dump, a CEL expression.
func WithFilter(where string) Option {
	return func(o *options) {
		o.where = where
	}
}

// WithRootType sets the structure Root resolves.
func WithRootType(name string) Option {
	return func(o *options) {
		o.rootType = name
	}
}

func defaultOptions() options {
	return options{
		logger:   slog.Default(),
		registry: scene.Registry(),
		rootType: DefaultRootType,
	}
}

// File is an opened file: its preamble and the decode session over its
// blocks. A File is not safe for concurrent use.
type File struct {
	Header Header
	DB     *blend.Database

	logger *slog.Logger
	opts   options
	pool   *query.Pool
}

// Open parses data, which may be gzip compressed, and indexes its blocks.
func Open(ctx context.Context, data []byte, opts ...Option) (*File, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	compressed := isGzip(data)
	data, err := inflate(data)
	if err != nil {
		return nil, err
	}
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	enc, err := LookupCharset(o.charset)
	if err != nil {
		return nil, err
	}
	dbOpts := []blend.Option{
		blend.WithLogger(o.logger),
		blend.WithRegistry(o.registry),
		blend.WithGenericFallback(o.generic),
	}
	if enc != nil {
		dbOpts = append(dbOpts, blend.WithCharset(enc))
	}
	db, err := blend.Load(data[HeaderSize:], h.Layout, dbOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading file: %w", err)
	}

	pool, err := query.NewPool()
	if err != nil {
		return nil, err
	}

	o.logger.DebugContext(ctx, "Opened file",
		"version", h.Version,
		"layout", h.Layout.String(),
		"compressed", compressed,
		"bytes", len(data),
	)
	return &File{Header: h, DB: db, logger: o.logger, opts: o, pool: pool}, nil
}

// OpenFile reads and opens the file at path.
func OpenFile(ctx context.Context, path string, opts ...Option) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return Open(ctx, data, opts...)
}

// LookupCharset resolves an encoding name. Empty gives nil, meaning strings
// are returned as stored.
func LookupCharset(name string) (encoding.Encoding, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", name, err)
	}
	return enc, nil
}

// Blocks returns the data blocks matching a CEL filter, in address order. An
// empty filter matches every block.
func (f *File) Blocks(where string) ([]blend.Block, error) {
	all := f.DB.Index.Blocks()
	if strings.TrimSpace(where) == "" {
		return slices.Clone(all), nil
	}
	prg, err := f.pool.Compile(where)
	if err != nil {
		return nil, err
	}
	var out []blend.Block
	for i, b := range all {
		ok, err := f.pool.Match(prg, f.vars(i, b))
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", b, err)
		}
		if ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *File) vars(i int, b blend.Block) query.Vars {
	v := query.Vars{
		Code:    b.Code,
		Address: b.Address,
		Size:    b.Size,
		Count:   b.Count,
		SDNA:    b.SDNAIndex,
		Index:   i,
	}
	if s, err := f.DB.Structure(b); err == nil {
		v.Type = s.Name
		v.Fields = make([]string, len(s.Fields))
		for j, fld := range s.Fields {
			v.Fields[j] = fld.Name
		}
	}
	return v
}

// Scene resolves the first scene of the file with the scene converters.
func (f *File) Scene(ctx context.Context) (*scene.Scene, error) {
	sc, err := scene.Extract(f.DB)
	if err != nil {
		return nil, err
	}
	f.logStats(ctx)
	return sc, nil
}

// Root resolves the first instance of the configured root type.
func (f *File) Root(ctx context.Context) (blend.Object, error) {
	obj, err := blend.ResolveFirst[blend.Object](f.DB, blend.Fail, f.opts.rootType)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", f.opts.rootType, err)
	}
	f.logStats(ctx)
	return obj, nil
}

func (f *File) logStats(ctx context.Context) {
	f.logger.InfoContext(ctx, "Decode finished", "stats", f.DB.Stats())
}
