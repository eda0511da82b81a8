// Package blendfile opens files that carry their own binary schema and
// exposes them as typed scene objects, filtered block lists and JSON.
//
// # Overview
//
// A file starts with a 12 byte preamble naming the pointer width and byte
// order of the machine that wrote it, followed by a sequence of blocks. One
// block holds the schema: every structure, its fields, their types and
// sizes. Every other block holds raw structure instances as they sat in
// memory, tagged with their original address. This package ties the pieces
// together:
//
//   - preamble parsing and transparent gzip input
//   - a decode session with the scene converters registered
//   - block selection with CEL expressions
//   - schema-driven JSON projection with optional pointer following
//
// # Quick Start
//
//	f, err := blendfile.OpenFile(ctx, "cube.blend")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sc, err := f.Scene(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, obj := range sc.Objects() {
//	    fmt.Println(obj.ID.DisplayName(), obj.Type)
//	}
//
// # Filters
//
// Blocks and Dump take a CEL expression evaluated against each block. The
// variables are code, address, size, count, sdna, type, index and fields
// (the field names of the block's structure):
//
//	blocks, err := f.Blocks(`type == "Mesh" && "**mat" in fields`)
//
// # JSON
//
// DumpJSON projects structures using the schema alone. With a follow depth
// pointers are replaced by the structures they point to. An address already
// inlined within the same entry is written as {"$ref": "0x..."}:
//
//	f, err := blendfile.Open(ctx, data, blendfile.WithFollowDepth(2))
//	err = f.DumpJSON(ctx, os.Stdout, `code == "OB"`)
//
// # Configuration
//
// Options can come from a YAML document:
//
//	cfg, err := blendfile.LoadConfig("blenddna.yaml")
//	f, err := blendfile.OpenFile(ctx, path, cfg.Options()...)
package blendfile
