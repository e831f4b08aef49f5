package messaging

import "context"

// BindingProperties describes a configured binding. Only Destination is used
// when resolving channel names; the rest is carried for binders.
type BindingProperties struct {
	Destination string `json:"destination" yaml:"destination"`
	Group       string `json:"group,omitempty" yaml:"group,omitempty"`
	ContentType string `json:"contentType,omitempty" yaml:"contentType,omitempty"`
	Binder      string `json:"binder,omitempty" yaml:"binder,omitempty"`
}

// BindingSource supplies the binding key -> properties mapping.
// Implementations are owned by a configuration loader and must treat the
// returned map as read-only once handed out.
type BindingSource interface {
	Bindings(ctx context.Context) (map[string]BindingProperties, error)
}

// StaticBindings is a fixed BindingSource.
type StaticBindings map[string]BindingProperties

func (s StaticBindings) Bindings(context.Context) (map[string]BindingProperties, error) {
	return s, nil
}

// BindingSourceFunc adapts a function to BindingSource.
type BindingSourceFunc func(ctx context.Context) (map[string]BindingProperties, error)

func (f BindingSourceFunc) Bindings(ctx context.Context) (map[string]BindingProperties, error) {
	return f(ctx)
}
