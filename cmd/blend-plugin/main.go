package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/twinfer/blenddna/internal/query"
	"github.com/twinfer/blenddna/pkg/blendfile"
)

// Output modes of the processor.
const (
	ModeDump   = "dump"
	ModeScene  = "scene"
	ModeHeader = "header"
)

// BlendProcessor is a Benthos processor that decodes self-describing
// binary files carried in message payloads into JSON.
type BlendProcessor struct {
	config   BlendConfig
	logger   *service.Logger
	mDecoded *service.MetricCounter
	mErrors  *service.MetricCounter
	mBlocks  *service.MetricCounter
}

// BlendConfig contains configuration parameters for the processor.
type BlendConfig struct {
	Mode        string `json:"mode" yaml:"mode"`
	Charset     string `json:"charset" yaml:"charset"`
	Where       string `json:"where" yaml:"where"`
	FollowDepth int    `json:"follow_depth" yaml:"follow_depth"`
	Generic     bool   `json:"generic" yaml:"generic"`
}

func init() {
	err := service.RegisterProcessor(
		"blend_dna",
		blendProcessorConfig(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (service.Processor, error) {
			return newBlendProcessorFromConfig(conf, mgr)
		},
	)
	if err != nil {
		panic(err)
	}
}

func main() {
	service.RunCLI(context.Background())
}

func blendProcessorConfig() *service.ConfigSpec {
	return service.NewConfigSpec().
		Summary("Decodes files that embed their own binary schema into JSON.").
		Description("The message payload holds a whole file, optionally gzip compressed. " +
			"In dump mode every structure instance of the selected blocks is projected to JSON using the embedded schema alone. " +
			"In scene mode the first scene is decoded and summarized. In header mode only the preamble and counts are emitted.").
		Field(service.NewStringEnumField("mode", ModeDump, ModeScene, ModeHeader).
			Description("What to emit for each file.").
			Default(ModeDump)).
		Field(service.NewStringField("charset").
			Description("Encoding of strings inside the file. Empty keeps raw bytes.").
			Example("windows-1252").
			Default("")).
		Field(service.NewStringField("where").
			Description("CEL expression selecting the blocks to dump.").
			Example(`code == "OB" && count > 0`).
			Default("")).
		Field(service.NewIntField("follow_depth").
			Description("Inline pointed-to structures up to this depth instead of emitting addresses.").
			Default(0)).
		Field(service.NewBoolField("generic").
			Description("Decode structures without a converter into field maps.").
			Default(false)).
		Version("0.1.0")
}

func newBlendProcessorFromConfig(conf *service.ParsedConfig, mgr *service.Resources) (*BlendProcessor, error) {
	var (
		config BlendConfig
		err    error
	)
	if config.Mode, err = conf.FieldString("mode"); err != nil {
		return nil, err
	}
	if config.Charset, err = conf.FieldString("charset"); err != nil {
		return nil, err
	}
	if config.Where, err = conf.FieldString("where"); err != nil {
		return nil, err
	}
	if config.FollowDepth, err = conf.FieldInt("follow_depth"); err != nil {
		return nil, err
	}
	if config.Generic, err = conf.FieldBool("generic"); err != nil {
		return nil, err
	}

	switch config.Mode {
	case ModeDump, ModeScene, ModeHeader:
	default:
		return nil, fmt.Errorf("unknown mode %q", config.Mode)
	}
	if config.FollowDepth < 0 {
		return nil, errors.New("follow_depth must not be negative")
	}
	if _, err := blendfile.LookupCharset(config.Charset); err != nil {
		return nil, err
	}
	if config.Where != "" {
		pool, err := query.NewPool()
		if err != nil {
			return nil, err
		}
		if _, err := pool.Compile(config.Where); err != nil {
			return nil, fmt.Errorf("where: %w", err)
		}
	}

	metrics := mgr.Metrics()
	return &BlendProcessor{
		config:   config,
		logger:   mgr.Logger(),
		mDecoded: metrics.NewCounter("blend_decoded_messages"),
		mErrors:  metrics.NewCounter("blend_decode_errors"),
		mBlocks:  metrics.NewCounter("blend_dumped_blocks"),
	}, nil
}

func (p *BlendProcessor) options() []blendfile.Option {
	return []blendfile.Option{
		blendfile.WithLogger(newSlogLogger(p.logger)),
		blendfile.WithCharset(p.config.Charset),
		blendfile.WithGenericFallback(p.config.Generic),
		blendfile.WithFollowDepth(p.config.FollowDepth),
		blendfile.WithFilter(p.config.Where),
	}
}

// Process decodes the file in msg. Decode failures are set on the message
// rather than returned.
func (p *BlendProcessor) Process(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	data, err := msg.AsBytes()
	if err != nil {
		return p.fail(msg, fmt.Errorf("reading message: %w", err))
	}
	if len(data) == 0 {
		return p.fail(msg, errors.New("empty message"))
	}

	f, err := blendfile.Open(ctx, data, p.options()...)
	if err != nil {
		return p.fail(msg, err)
	}

	var out bytes.Buffer
	switch p.config.Mode {
	case ModeScene:
		sc, err := f.Scene(ctx)
		if err != nil {
			return p.fail(msg, err)
		}
		err = json.NewEncoder(&out).Encode(sc.Summarize())
		if err != nil {
			return p.fail(msg, err)
		}
	case ModeHeader:
		err = json.NewEncoder(&out).Encode(map[string]any{
			"version":      f.Header.Version,
			"pointer_size": f.Header.Layout.PointerSize,
			"big_endian":   f.Header.Layout.BigEndian,
			"blocks":       f.DB.Index.Len(),
			"structures":   f.DB.Catalog.Len(),
		})
		if err != nil {
			return p.fail(msg, err)
		}
	case ModeDump:
		entries, err := f.Dump(ctx, "")
		if err != nil {
			return p.fail(msg, err)
		}
		if err := json.NewEncoder(&out).Encode(entries); err != nil {
			return p.fail(msg, err)
		}
		p.mBlocks.Incr(int64(len(entries)))
	}

	p.logger.Debugf("Decoded %d bytes in %s mode", len(data), p.config.Mode)
	p.mDecoded.Incr(1)

	newMsg := msg.Copy()
	newMsg.SetBytes(bytes.TrimRight(out.Bytes(), "\n"))
	newMsg.MetaSetMut("blend_version", f.Header.Version)
	newMsg.MetaSetMut("blend_pointer_size", int64(f.Header.Layout.PointerSize))
	newMsg.MetaSet("blend_big_endian", strconv.FormatBool(f.Header.Layout.BigEndian))
	return service.MessageBatch{newMsg}, nil
}

func (p *BlendProcessor) fail(msg *service.Message, err error) (service.MessageBatch, error) {
	p.logger.Errorf("Failed to decode message: %v", err)
	p.mErrors.Incr(1)
	msg.SetError(err)
	return service.MessageBatch{msg}, nil
}

// Close releases nothing; the processor keeps no state between messages.
func (p *BlendProcessor) Close(ctx context.Context) error {
	return nil
}
