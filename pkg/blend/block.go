package blend

import (
	"cmp"
	"fmt"
	"slices"
	"sort"

	"github.com/twinfer/blenddna/pkg/dna"
	"github.com/twinfer/blenddna/pkg/stream"
)

const (
	codeSchema = "DNA1"
	codeEnd    = "ENDB"
)

// Block is one physical chunk of the file. Its payload holds Count instances
// of the schema structure SDNAIndex, as they sat at Address in the memory of
// the producing application.
type Block struct {
	Start     int64 // payload offset in the buffer
	Code      string
	Size      uint64
	Address   uint64
	SDNAIndex uint32
	Count     uint32
}

// End returns the first address past the block.
func (b Block) End() uint64 { return b.Address + b.Size }

// Contains reports whether ptr falls inside the block's address range.
func (b Block) Contains(ptr uint64) bool {
	return ptr >= b.Address && ptr < b.End()
}

func (b Block) String() string {
	return fmt.Sprintf("%s@%#x (%d bytes, sdna %d, count %d)", b.Code, b.Address, b.Size, b.SDNAIndex, b.Count)
}

// BlockIndex is the table of data blocks sorted by address.
type BlockIndex struct {
	blocks []Block
}

// NewBlockIndex sorts blocks by address and indexes them.
func NewBlockIndex(blocks []Block) *BlockIndex {
	sorted := slices.Clone(blocks)
	slices.SortStableFunc(sorted, func(a, b Block) int { return cmp.Compare(a.Address, b.Address) })
	return &BlockIndex{blocks: sorted}
}

// ScanBlocks reads block headers from the cursor until the end sentinel. The
// schema block is handed to the schema parser instead of being indexed.
func ScanBlocks(c *stream.Cursor) (*BlockIndex, *dna.Catalog, error) {
	var (
		blocks  []Block
		catalog *dna.Catalog
	)
	for {
		b, err := readBlockHeader(c)
		if err != nil {
			return nil, nil, err
		}
		if b.Code == codeEnd {
			break
		}
		if b.Size > uint64(c.Remaining()) {
			return nil, nil, fmt.Errorf("%w: invalid size of file block %s at %d: %d bytes, %d remaining",
				ErrBlock, b.Code, b.Start, b.Size, c.Remaining())
		}

		if b.Code == codeSchema {
			if catalog, err = dna.Parse(c); err != nil {
				return nil, nil, fmt.Errorf("parsing schema block: %w", err)
			}
		} else {
			blocks = append(blocks, b)
		}
		if err := c.SeekTo(b.Start + int64(b.Size)); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrBlock, err)
		}
	}
	if catalog == nil {
		return nil, nil, fmt.Errorf("%w: file contains no %s block", dna.ErrSchema, codeSchema)
	}
	return NewBlockIndex(blocks), catalog, nil
}

func readBlockHeader(c *stream.Cursor) (Block, error) {
	var b Block
	off := c.Offset()
	wrap := func(err error) (Block, error) {
		return Block{}, fmt.Errorf("%w: reading block header at %d: %v", ErrBlock, off, err)
	}

	code, err := c.Tag()
	if err != nil {
		return wrap(err)
	}
	b.Code = code

	size, err := c.U32()
	if err != nil {
		return wrap(err)
	}
	b.Size = uint64(size)

	if b.Address, err = c.Pointer(); err != nil {
		return wrap(err)
	}
	if b.SDNAIndex, err = c.U32(); err != nil {
		return wrap(err)
	}
	if b.Count, err = c.U32(); err != nil {
		return wrap(err)
	}
	b.Start = c.Offset()
	return b, nil
}

// Locate returns the block whose address range contains ptr.
func (bi *BlockIndex) Locate(ptr uint64) (Block, error) {
	i := sort.Search(len(bi.blocks), func(i int) bool { return bi.blocks[i].Address > ptr })
	if i > 0 && bi.blocks[i-1].Contains(ptr) {
		return bi.blocks[i-1], nil
	}
	if len(bi.blocks) == 0 {
		return Block{}, fmt.Errorf("%w: no block contains %#x, the file has no data blocks", ErrPointer, ptr)
	}
	last := bi.blocks[len(bi.blocks)-1]
	return Block{}, fmt.Errorf("%w: no block contains %#x (corrupt file or attack); the last block spans %#x to %#x",
		ErrPointer, ptr, last.Address, last.End())
}

// Blocks returns the blocks in address order. The slice must not be modified.
func (bi *BlockIndex) Blocks() []Block { return bi.blocks }

// Len returns the number of indexed blocks.
func (bi *BlockIndex) Len() int { return len(bi.blocks) }

// FirstOf returns the lowest addressed block holding the given structure.
func (bi *BlockIndex) FirstOf(sdnaIndex int) (Block, bool) {
	for _, b := range bi.blocks {
		if int(b.SDNAIndex) == sdnaIndex {
			return b, true
		}
	}
	return Block{}, false
}

// ByCode returns the blocks carrying the given code, in address order.
func (bi *BlockIndex) ByCode(code string) []Block {
	var out []Block
	for _, b := range bi.blocks {
		if b.Code == code {
			out = append(out, b)
		}
	}
	return out
}
