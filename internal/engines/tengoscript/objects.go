package tengoscript

import (
	"fmt"

	"github.com/d5/tengo/v2"
	"github.com/nfrund/hostscript/internal/script"
)

// toObject converts a builtin value for the VM. Values Tengo has no type for
// are wrapped as host objects.
func toObject(v any) any {
	switch v := v.(type) {
	case nil, string, bool, int, int64, float64:
		return v
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return items
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		return m
	default:
		return &hostObject{value: v}
	}
}

type hostObject struct {
	tengo.ObjectImpl
	value any
}

func (o *hostObject) TypeName() string { return "host-object" }
func (o *hostObject) String() string   { return fmt.Sprintf("<host-object %T>", o.value) }

// Copy returns the same object; host handles are shared, not duplicated.
func (o *hostObject) Copy() tengo.Object { return o }

func (o *hostObject) Equals(x tengo.Object) bool {
	other, ok := x.(*hostObject)
	return ok && other == o
}

func (o *hostObject) IndexGet(index tengo.Object) (tengo.Object, error) {
	key, ok := tengo.ToString(index)
	if !ok {
		return nil, tengo.ErrInvalidIndexType
	}
	doc, ok := o.value.(script.DocumentIdentity)
	if !ok {
		return tengo.UndefinedValue, nil
	}
	switch key {
	case "title":
		return &tengo.String{Value: doc.Title()}, nil
	case "path_name":
		return &tengo.String{Value: doc.PathName()}, nil
	}
	return tengo.UndefinedValue, nil
}
