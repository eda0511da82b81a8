package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/twinfer/blenddna/pkg/blend"
	"github.com/twinfer/blenddna/pkg/blendfile"
	"github.com/twinfer/blenddna/pkg/dna"
)

type headerInfo struct {
	Version     string `json:"version"`
	PointerSize int    `json:"pointer_size"`
	BigEndian   bool   `json:"big_endian"`
	Blocks      int    `json:"blocks"`
	Structures  int    `json:"structures"`
	Fields      int    `json:"fields"`
}

func headerCmd() *cli.Command {
	return &cli.Command{
		Name:      "header",
		Usage:     "Print the preamble and a summary of the file",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := openInput(ctx, cmd)
			if err != nil {
				return err
			}
			info := headerInfo{
				Version:     f.Header.Version,
				PointerSize: f.Header.Layout.PointerSize,
				BigEndian:   f.Header.Layout.BigEndian,
				Blocks:      f.DB.Index.Len(),
				Structures:  f.DB.Catalog.Len(),
				Fields:      f.DB.Catalog.FieldCount(),
			}
			w := stdout(cmd)
			if cmd.Bool("json") {
				return writeJSON(w, info)
			}
			order := "little"
			if info.BigEndian {
				order = "big"
			}
			fmt.Fprintf(w, "Version:    %s\n", info.Version)
			fmt.Fprintf(w, "Pointers:   %d bytes\n", info.PointerSize)
			fmt.Fprintf(w, "Byte order: %s endian\n", order)
			fmt.Fprintf(w, "Blocks:     %d\n", info.Blocks)
			fmt.Fprintf(w, "Structures: %d (%d fields)\n", info.Structures, info.Fields)
			return nil
		},
	}
}

type fieldInfo struct {
	Name   string    `json:"name"`
	Type   string    `json:"type"`
	Offset uint64    `json:"offset"`
	Size   uint64    `json:"size"`
	Dims   [2]uint64 `json:"dims"`
}

type structInfo struct {
	Index  int         `json:"index"`
	Name   string      `json:"name"`
	Size   uint64      `json:"size"`
	Fields []fieldInfo `json:"fields,omitempty"`
}

func describe(i int, s *dna.Structure, withFields bool) structInfo {
	info := structInfo{Index: i, Name: s.Name, Size: s.Size}
	if withFields {
		for _, f := range s.Fields {
			info.Fields = append(info.Fields, fieldInfo{
				Name:   f.Name,
				Type:   f.Type,
				Offset: f.Offset,
				Size:   f.Size,
				Dims:   f.ArraySizes,
			})
		}
	}
	return info
}

func dnaCmd() *cli.Command {
	return &cli.Command{
		Name:      "dna",
		Usage:     "List the structures of the embedded schema",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "struct", Aliases: []string{"s"}, Usage: "show the fields of one structure"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := openInput(ctx, cmd)
			if err != nil {
				return err
			}
			w := stdout(cmd)

			if name := cmd.String("struct"); name != "" {
				i, ok := f.DB.Catalog.Index(name)
				if !ok {
					return fmt.Errorf("%w named %q", dna.ErrNoStructure, name)
				}
				info := describe(i, f.DB.Catalog.Structures[i], true)
				if cmd.Bool("json") {
					return writeJSON(w, info)
				}
				fmt.Fprintf(w, "%s (%d bytes)\n", info.Name, info.Size)
				for _, fld := range info.Fields {
					fmt.Fprintf(w, "  %6d  %-12s %-24s %d\n", fld.Offset, fld.Type, fld.Name, fld.Size)
				}
				return nil
			}

			var all []structInfo
			for i, s := range f.DB.Catalog.Structures {
				if s.IsPrimitive() {
					continue
				}
				all = append(all, describe(i, s, false))
			}
			if cmd.Bool("json") {
				return writeJSON(w, all)
			}
			for _, s := range all {
				fmt.Fprintf(w, "%4d  %-24s %6d bytes\n", s.Index, s.Name, s.Size)
			}
			return nil
		},
	}
}

type blockInfo struct {
	Code    string `json:"code"`
	Address string `json:"address"`
	Size    uint64 `json:"size"`
	Count   uint32 `json:"count"`
	Type    string `json:"type"`
}

func blocksCmd() *cli.Command {
	return &cli.Command{
		Name:      "blocks",
		Usage:     "List data blocks, optionally filtered by a CEL expression",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "where", Aliases: []string{"w"}, Usage: `CEL filter, e.g. code == "OB" && count > 1`},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := openInput(ctx, cmd)
			if err != nil {
				return err
			}
			blocks, err := f.Blocks(cmd.String("where"))
			if err != nil {
				return err
			}

			out := make([]blockInfo, 0, len(blocks))
			for _, b := range blocks {
				info := blockInfo{
					Code:    b.Code,
					Address: blend.Address(b.Address).String(),
					Size:    b.Size,
					Count:   b.Count,
				}
				if s, err := f.DB.Structure(b); err == nil {
					info.Type = s.Name
				}
				out = append(out, info)
			}

			w := stdout(cmd)
			if cmd.Bool("json") {
				return writeJSON(w, out)
			}
			for _, b := range out {
				fmt.Fprintf(w, "%-4s %18s %8d x%-4d %s\n", b.Code, b.Address, b.Size, b.Count, b.Type)
			}
			return nil
		},
	}
}

func dumpCmd() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "Project structures to JSON using the schema alone",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "where", Aliases: []string{"w"}, Usage: "CEL filter selecting the blocks to dump"},
			&cli.IntFlag{Name: "follow", Usage: "follow pointers this many levels deep", Value: -1},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var extra []blendfile.Option
			if depth := cmd.Int("follow"); depth >= 0 {
				extra = append(extra, blendfile.WithFollowDepth(depth))
			}
			f, err := openInput(ctx, cmd, extra...)
			if err != nil {
				return err
			}
			return f.DumpJSON(ctx, stdout(cmd), cmd.String("where"))
		},
	}
}

func sceneCmd() *cli.Command {
	return &cli.Command{
		Name:      "scene",
		Usage:     "Decode the first scene and list its objects",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := openInput(ctx, cmd)
			if err != nil {
				return err
			}
			sc, err := f.Scene(ctx)
			if err != nil {
				return err
			}

			info := sc.Summarize()
			w := stdout(cmd)
			if cmd.Bool("json") {
				return writeJSON(w, info)
			}
			fmt.Fprintf(w, "Scene %s\n", info.Name)
			if info.Camera != "" {
				fmt.Fprintf(w, "  camera: %s\n", info.Camera)
			}
			if info.World != "" {
				fmt.Fprintf(w, "  world:  %s\n", info.World)
			}
			for _, o := range info.Objects {
				fmt.Fprintf(w, "  %-16s %-8s %s\n", o.Name, o.Type, o.Data)
			}
			return nil
		},
	}
}
