// Package config loads runtime configuration from HCL.
//
//	shim_src       = "require-inline.js"
//	settle_timeout = "5s"
//	max_pages      = 8
//
//	context "_" {
//	  base_url = "${env.CDN}/js/"
//	  url_args = "v=3"
//	  paths    = { jquery = "vendor/jquery-3.7.1" }
//	  bundles  = { "layer/core" = ["app/a", "app/b"] }
//	}
//
// Expressions can read the process environment through the `env` object.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.miragespace.co/inline/amd"
	"go.miragespace.co/inline/shim"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

const (
	DefaultSettleTimeout = 5 * time.Second
	DefaultMaxPages      = 8
)

type Config struct {
	ShimSrc       string     `hcl:"shim_src,optional"`
	SettleTimeout string     `hcl:"settle_timeout,optional"`
	MaxPages      int        `hcl:"max_pages,optional"`
	Contexts      []*Context `hcl:"context,block"`
}

type Context struct {
	Name    string              `hcl:"name,label"`
	BaseURL string              `hcl:"base_url,optional"`
	URLArgs string              `hcl:"url_args,optional"`
	Paths   map[string]string   `hcl:"paths,optional"`
	Bundles map[string][]string `hcl:"bundles,optional"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ShimSrc:       shim.DefaultSrc,
		SettleTimeout: DefaultSettleTimeout.String(),
		MaxPages:      DefaultMaxPages,
	}
}

// Load reads and decodes the HCL file at path.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(src, path)
}

// Parse decodes HCL source. filename is only used in diagnostics.
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()

	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	cfg := Default()
	diags = gohcl.DecodeBody(file.Body, evalContext(), cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ShimSrc == "" {
		return fmt.Errorf("config: shim_src cannot be empty")
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("config: max_pages cannot be smaller than 1")
	}
	if _, err := c.Settle(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Contexts))
	for _, ctx := range c.Contexts {
		if ctx.Name == "" {
			return fmt.Errorf("config: context name cannot be empty")
		}
		if seen[ctx.Name] {
			return fmt.Errorf("config: duplicate context %q", ctx.Name)
		}
		seen[ctx.Name] = true
	}
	return nil
}

func (c *Config) Settle() (time.Duration, error) {
	if c.SettleTimeout == "" {
		return DefaultSettleTimeout, nil
	}
	d, err := time.ParseDuration(c.SettleTimeout)
	if err != nil {
		return 0, fmt.Errorf("config: settle_timeout: %w", err)
	}
	return d, nil
}

// ModuleContexts returns the amd configuration of every context, keyed by
// name. The default context is always present.
func (c *Config) ModuleContexts() map[string]amd.Config {
	out := map[string]amd.Config{
		amd.DefaultContext: {},
	}
	for _, ctx := range c.Contexts {
		out[ctx.Name] = amd.Config{
			BaseURL: ctx.BaseURL,
			URLArgs: ctx.URLArgs,
			Paths:   ctx.Paths,
			Bundles: ctx.Bundles,
		}
	}
	return out
}

func evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = cty.StringVal(v)
	}

	envVal := cty.EmptyObjectVal
	if len(env) > 0 {
		envVal = cty.ObjectVal(env)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": envVal,
		},
	}
}
