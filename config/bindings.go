package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	serr "github.com/next-trace/scg-stream-verifier/contract/errors"
	"github.com/next-trace/scg-stream-verifier/contract/messaging"
)

// bindingsFile is the YAML layout:
//
//	bindings:
//	  hystrixStreamOutput:
//	    destination: springCloudHystrixStream
type bindingsFile struct {
	Bindings map[string]messaging.BindingProperties `yaml:"bindings"`
}

// ParseBindings decodes a bindings document.
func ParseBindings(data []byte) (map[string]messaging.BindingProperties, error) {
	var doc bindingsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse bindings: %w", err)
	}

	if doc.Bindings == nil {
		return map[string]messaging.BindingProperties{}, nil
	}

	return doc.Bindings, nil
}

// FileBindings reads bindings from a YAML file on every call, so edits are
// picked up without a restart.
type FileBindings struct {
	Path string
}

var _ messaging.BindingSource = FileBindings{}

func (f FileBindings) Bindings(ctx context.Context) (map[string]messaging.BindingProperties, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("bindings %q: %w", f.Path, errors.Join(serr.ErrConfigurationUnavailable, err))
	}

	b, err := ParseBindings(data)
	if err != nil {
		return nil, fmt.Errorf("bindings %q: %w", f.Path, errors.Join(serr.ErrConfigurationUnavailable, err))
	}

	return b, nil
}
