package feedback

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// HandlerKind is the kind of cached load/store IC handler.
type HandlerKind uint8

const (
	HandlerSlow HandlerKind = iota
	HandlerField
	HandlerConstant
	HandlerAccessor
)

// Handler is a decoded data handler. Field handlers locate a property either
// in the object itself or in its out-of-object backing store.
type Handler struct {
	Kind       HandlerKind
	InObject   bool
	IsDouble   bool
	FieldIndex int
}

// Encoding: bits 0-1 kind, bit 2 in-object, bit 3 double, bits 4.. index.
const (
	handlerKindBits   = 2
	handlerInObject   = 1 << 2
	handlerDouble     = 1 << 3
	handlerIndexShift = 4
)

// FieldHandler returns an in-object tagged field handler.
func FieldHandler(index int) Handler {
	return Handler{Kind: HandlerField, InObject: true, FieldIndex: index}
}

// Encode packs the handler into the integer carried by field access nodes.
func (h Handler) Encode() int64 {
	v := int64(h.Kind) & (1<<handlerKindBits - 1)
	if h.InObject {
		v |= handlerInObject
	}
	if h.IsDouble {
		v |= handlerDouble
	}
	return v | int64(h.FieldIndex)<<handlerIndexShift
}

// DecodeHandler unpacks an encoded handler.
func DecodeHandler(v int64) Handler {
	return Handler{
		Kind:       HandlerKind(v & (1<<handlerKindBits - 1)),
		InObject:   v&handlerInObject != 0,
		IsDouble:   v&handlerDouble != 0,
		FieldIndex: int(v >> handlerIndexShift),
	}
}

// IsDirectField reports whether the handler is a plain tagged field access
// the optimizing tier can inline.
func (h Handler) IsDirectField() bool {
	return h.Kind == HandlerField && !h.IsDouble
}

func (h Handler) String() string {
	switch h.Kind {
	case HandlerField:
		where := "backing"
		if h.InObject {
			where = "inobject"
		}
		if h.IsDouble {
			where += ",double"
		}
		return fmt.Sprintf("field(%d,%s)", h.FieldIndex, where)
	case HandlerConstant:
		return "constant"
	case HandlerAccessor:
		return "accessor"
	}
	return "slow"
}

// ParseHandler is the inverse of String.
func ParseHandler(s string) (Handler, error) {
	switch s {
	case "slow":
		return Handler{Kind: HandlerSlow}, nil
	case "constant":
		return Handler{Kind: HandlerConstant}, nil
	case "accessor":
		return Handler{Kind: HandlerAccessor}, nil
	}
	if !strings.HasPrefix(s, "field(") || !strings.HasSuffix(s, ")") {
		return Handler{}, errors.Errorf("invalid handler %q", s)
	}
	parts := strings.Split(s[len("field("):len(s)-1], ",")
	index, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || index < 0 {
		return Handler{}, errors.Errorf("invalid field index in handler %q", s)
	}
	h := Handler{Kind: HandlerField, FieldIndex: index}
	for _, p := range parts[1:] {
		switch strings.TrimSpace(p) {
		case "inobject":
			h.InObject = true
		case "backing":
		case "double":
			h.IsDouble = true
		default:
			return Handler{}, errors.Errorf("invalid handler attribute %q in %q", p, s)
		}
	}
	return h, nil
}
