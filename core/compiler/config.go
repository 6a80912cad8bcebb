package compiler

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"unicode"

	"github.com/naoina/toml"
	"github.com/pkg/errors"

	"github.com/bnb-chain/midtier/core/graphbuilder"
	"github.com/bnb-chain/midtier/core/regalloc"
)

// Config tunes the pipeline. It is loaded from TOML with field names as
// keys.
type Config struct {
	Inlining               bool
	MaxInlineDepth         int
	MaxInlinedBytecodeSize int

	// Registers lists the allocatable registers by name.
	Registers []string

	CacheSize int
	// Workers bounds batch compilation. Zero shares the process-wide pool.
	Workers int

	TraceGraphBuilding bool
	TraceRegalloc      bool
	VerifyGraph        bool
}

// DefaultConfig contains the default pipeline settings.
var DefaultConfig = Config{
	Inlining:               graphbuilder.DefaultOptions.Inlining,
	MaxInlineDepth:         graphbuilder.DefaultOptions.MaxInlineDepth,
	MaxInlinedBytecodeSize: graphbuilder.DefaultOptions.MaxInlinedBytecodeSize,
	Registers:              regalloc.DefaultRegisters,
	CacheSize:              256,
	Workers:                runtime.GOMAXPROCS(0),
	VerifyGraph:            true,
}

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// LoadConfig decodes file into cfg. Fields missing from the file keep the
// value they had in cfg.
func LoadConfig(file string, cfg *Config) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// DecodeTOML decodes TOML data with the pipeline's field naming rules.
func DecodeTOML(data []byte, v interface{}) error {
	return tomlSettings.Unmarshal(data, v)
}

// EncodeTOML renders v with the pipeline's field naming rules.
func EncodeTOML(v interface{}) ([]byte, error) {
	return tomlSettings.Marshal(v)
}

func (c *Config) graphOptions() graphbuilder.Options {
	return graphbuilder.Options{
		Inlining:               c.Inlining,
		MaxInlineDepth:         c.MaxInlineDepth,
		MaxInlinedBytecodeSize: c.MaxInlinedBytecodeSize,
		Trace:                  c.TraceGraphBuilding,
	}
}

func (c *Config) regallocConfig() (*regalloc.Config, error) {
	rc, err := regalloc.NewConfig(c.Registers)
	if err != nil {
		return nil, err
	}
	rc.Trace = c.TraceRegalloc
	return rc, nil
}

func (c *Config) sanitize() error {
	if c.MaxInlineDepth < 0 {
		return errors.Errorf("MaxInlineDepth %d is negative", c.MaxInlineDepth)
	}
	if c.MaxInlinedBytecodeSize < 0 {
		return errors.Errorf("MaxInlinedBytecodeSize %d is negative", c.MaxInlinedBytecodeSize)
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultConfig.CacheSize
	}
	if c.Workers < 0 {
		c.Workers = 0
	}
	return nil
}
