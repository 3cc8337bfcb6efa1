package gojabridge

import (
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

var protoMessageType = reflect.TypeFor[proto.Message]()

// PutFromProto converts [proto.Message] values to plain script objects, per
// the protobuf JSON mapping.
func PutFromProto(c *Context) {
	PutFromObject(c, func(c *Context, _ reflect.Type, v any) (any, bool, error) {
		msg, ok := v.(proto.Message)
		if !ok {
			return nil, false, nil
		}
		if !msg.ProtoReflect().IsValid() {
			return nil, true, nil
		}
		b, err := protojson.Marshal(msg)
		if err != nil {
			return nil, false, &ConversionError{Target: AnyType, Value: v, Cause: err}
		}
		gv, err := parseJSON(c.loop.vm, string(b))
		if err != nil {
			return nil, false, err
		}
		return gv, true, nil
	})
}

// PutToProto converts script objects to [proto.Message] targets, which must
// be pointers, per the protobuf JSON mapping. Unknown fields are discarded.
// It declines primitives.
func PutToProto(c *Context) {
	PutToObject(c, func(c *Context, target reflect.Type, v any) (any, bool, error) {
		if target.Kind() != reflect.Pointer || !target.Implements(protoMessageType) {
			return nil, false, nil
		}
		x, ok := v.(*Value)
		if !ok || !x.IsObject() {
			return nil, false, nil
		}
		s, err := stringify(c.loop.vm, x.val)
		if err != nil {
			return nil, false, err
		}
		msg := reflect.New(target.Elem()).Interface().(proto.Message)
		if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal([]byte(s), msg); err != nil {
			return nil, false, &ConversionError{Target: target, Value: v, Cause: err}
		}
		return msg, true, nil
	})
}
