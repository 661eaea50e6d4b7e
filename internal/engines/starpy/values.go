package starpy

import (
	"fmt"
	"sort"

	"github.com/nfrund/hostscript/internal/script"
	"go.starlark.net/starlark"
)

// toValue converts a builtin value into its guest representation. Host
// objects the interpreter cannot express are wrapped opaquely.
func toValue(v any) starlark.Value {
	switch v := v.(type) {
	case nil:
		return starlark.None
	case starlark.Value:
		return v
	case string:
		return starlark.String(v)
	case bool:
		return starlark.Bool(v)
	case int:
		return starlark.MakeInt(v)
	case int64:
		return starlark.MakeInt64(v)
	case float64:
		return starlark.Float(v)
	case []string:
		items := make([]starlark.Value, len(v))
		for i, s := range v {
			items[i] = starlark.String(s)
		}
		return starlark.NewList(items)
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := starlark.NewDict(len(v))
		for _, k := range keys {
			_ = d.SetKey(starlark.String(k), starlark.String(v[k]))
		}
		return d
	default:
		return &hostValue{obj: v}
	}
}

// hostValue exposes a host object to scripts. Document handles answer the
// title and path_name attributes.
type hostValue struct {
	obj any
}

var (
	_ starlark.Value    = (*hostValue)(nil)
	_ starlark.HasAttrs = (*hostValue)(nil)
)

func (h *hostValue) String() string       { return fmt.Sprintf("<host_object %T>", h.obj) }
func (h *hostValue) Type() string         { return "host_object" }
func (h *hostValue) Freeze()              {}
func (h *hostValue) Truth() starlark.Bool { return starlark.True }

func (h *hostValue) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: %s", h.Type())
}

func (h *hostValue) Attr(name string) (starlark.Value, error) {
	doc, ok := h.obj.(script.DocumentIdentity)
	if !ok {
		return nil, nil
	}
	switch name {
	case "title":
		return starlark.String(doc.Title()), nil
	case "path_name":
		return starlark.String(doc.PathName()), nil
	}
	return nil, nil
}

func (h *hostValue) AttrNames() []string {
	if _, ok := h.obj.(script.DocumentIdentity); ok {
		return []string{"path_name", "title"}
	}
	return nil
}
