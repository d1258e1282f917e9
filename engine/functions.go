package engine

import (
	"database/sql/driver"
	"fmt"
	"sync"

	"github.com/viant/sqlite-squeeze/row"
	sqlite "modernc.org/sqlite"
)

// PackOptions controls how squeeze_pack stores text and blob arguments.
type PackOptions struct {
	// CompressThreshold is the payload size from which values are compressed;
	// zero disables compression.
	CompressThreshold int
	Codec             row.Codec
}

// DefaultPackOptions compresses values of 2KiB and more with snappy.
func DefaultPackOptions() PackOptions {
	return PackOptions{CompressThreshold: 2048, Codec: row.CodecSnappy}
}

var (
	packMu      sync.RWMutex
	packOptions = DefaultPackOptions()

	registerOnce sync.Once
	registerErr  error
)

// SetPackOptions changes how subsequent squeeze_pack calls store values.
func SetPackOptions(opts PackOptions) {
	packMu.Lock()
	packOptions = opts
	packMu.Unlock()
}

// registerRowFunctions registers squeeze_pack and squeeze_unpack with the
// driver so they are available on connections opened after this call.
func registerRowFunctions() error {
	registerOnce.Do(func() {
		if registerErr = sqlite.RegisterDeterministicScalarFunction("squeeze_pack", -1, packImpl); registerErr != nil {
			return
		}
		registerErr = sqlite.RegisterDeterministicScalarFunction("squeeze_unpack", 2, unpackImpl)
	})
	return registerErr
}

// packImpl encodes its arguments as one row image.
func packImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	packMu.RLock()
	opts := packOptions
	packMu.RUnlock()
	tup := make(row.Row, len(args))
	for i, arg := range args {
		v, err := row.FromDriver(arg)
		if err != nil {
			return nil, fmt.Errorf("squeeze_pack: argument %d: %w", i+1, err)
		}
		if opts.CompressThreshold > 0 && (v.Kind() == row.KindText || v.Kind() == row.KindBlob) {
			if payload, _ := v.Payload(); len(payload) >= opts.CompressThreshold {
				if v, err = row.Compress(v, opts.Codec); err != nil {
					return nil, fmt.Errorf("squeeze_pack: argument %d: %w", i+1, err)
				}
			}
		}
		tup[i] = v
	}
	return row.Encode(nil, tup)
}

// unpackImpl returns column n (0-based) of a packed row image.
func unpackImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("squeeze_unpack: expected 2 arguments, got %d", len(args))
	}
	if args[0] == nil {
		return nil, nil
	}
	image, ok := args[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("squeeze_unpack: unsupported argument type %T for row; want BLOB", args[0])
	}
	n, ok := args[1].(int64)
	if !ok {
		return nil, fmt.Errorf("squeeze_unpack: unsupported argument type %T for column; want INTEGER", args[1])
	}
	tup, err := row.Decode(image)
	if err != nil {
		return nil, fmt.Errorf("squeeze_unpack: %w", err)
	}
	if n < 0 || n >= int64(len(tup)) {
		return nil, fmt.Errorf("squeeze_unpack: column %d out of range for %d columns", n, len(tup))
	}
	return tup[n].Interface()
}
