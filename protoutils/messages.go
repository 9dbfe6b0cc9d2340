// Package protoutils converts bridge messages to and from protobuf well-known types and stores
// them as length-delimited protobuf streams.
package protoutils

import (
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

// MessageToStruct converts a message (a struct or string keyed map, possibly nested) into a
// structpb.Struct. Struct fields are keyed by their json tag name.
func MessageToStruct(msg interface{}) (*structpb.Struct, error) {
	m, err := InterfaceToMap(msg)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// StructToMessage decodes a structpb.Struct produced by MessageToStruct back into a T.
func StructToMessage[T any](s *structpb.Struct) (T, error) {
	var msg T
	if s == nil {
		return msg, errors.New("no data passed in")
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &msg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return msg, err
	}
	if err := decoder.Decode(s.AsMap()); err != nil {
		return msg, errors.Wrapf(err, "decoding %T", msg)
	}
	return msg, nil
}

// InterfaceToMap attempts to coerce an interface into a form acceptable by structpb.NewStruct.
// Expects a struct or a map-like object.
func InterfaceToMap(data interface{}) (map[string]interface{}, error) {
	if data == nil {
		return nil, errors.New("no data passed in")
	}
	value := reflect.Indirect(reflect.ValueOf(data))
	switch value.Kind() {
	case reflect.Struct:
		return structToMap(value)
	case reflect.Map:
		return marshalMap(value)
	case reflect.Invalid:
		return nil, errors.Errorf("nil %T", data)
	default:
		return nil, errors.Errorf("data of type %T not a struct or a map-like object", data)
	}
}

func toInterface(value reflect.Value) (interface{}, error) {
	if value.Kind() == reflect.Ptr || value.Kind() == reflect.Interface {
		if value.IsNil() {
			return nil, nil
		}
		value = value.Elem()
	}
	switch value.Kind() {
	case reflect.Struct:
		return structToMap(value)
	case reflect.Map:
		return marshalMap(value)
	case reflect.Slice, reflect.Array:
		if value.Kind() == reflect.Slice && value.Type().Elem().Kind() == reflect.Uint8 {
			return value.Bytes(), nil
		}
		return marshalSlice(value)
	case reflect.String:
		return value.String(), nil
	case reflect.Bool:
		return value.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return value.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return value.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return value.Float(), nil
	default:
		return nil, errors.Errorf("unsupported value of type %v", value.Type())
	}
}

// jsonKey returns the key a struct field is stored under and whether it is stored at all.
func jsonKey(field reflect.StructField) (string, bool) {
	if !field.IsExported() {
		return "", false
	}
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	switch name {
	case "-":
		return "", false
	case "":
		return field.Name, true
	default:
		return name, true
	}
}

// structToMap attempts to coerce a struct into a form acceptable by grpc.
func structToMap(value reflect.Value) (map[string]interface{}, error) {
	t := value.Type()
	res := make(map[string]interface{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		key, ok := jsonKey(t.Field(i))
		if !ok {
			continue
		}
		data, err := toInterface(value.Field(i))
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", key)
		}
		res[key] = data
	}
	return res, nil
}

// marshalMap attempts to coerce maps of string keys into a form acceptable by grpc.
func marshalMap(value reflect.Value) (map[string]interface{}, error) {
	if value.Type().Key().Kind() != reflect.String {
		return nil, errors.Errorf("map keys of type %v are not strings", value.Type().Key().Kind())
	}
	result := make(map[string]interface{}, value.Len())
	iter := value.MapRange()
	for iter.Next() {
		data, err := toInterface(iter.Value())
		if err != nil {
			return nil, err
		}
		result[iter.Key().String()] = data
	}
	return result, nil
}

// marshalSlice attempts to coerce list data into a form acceptable by grpc.
func marshalSlice(value reflect.Value) ([]interface{}, error) {
	newList := make([]interface{}, 0, value.Len())
	for i := 0; i < value.Len(); i++ {
		data, err := toInterface(value.Index(i))
		if err != nil {
			return nil, err
		}
		newList = append(newList, data)
	}
	return newList, nil
}
