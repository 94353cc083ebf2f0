package command

import (
	"fmt"
	"reflect"

	"github.com/aretw0/datum/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

var point3DType = reflect.TypeOf(domain.Point3D{})

// decodeParams decodes a raw parameter map into a command's typed
// parameter struct. Conversion is strict: no weak typing, and points go
// through the checked domain.AsPoint conversion.
func decodeParams(params map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: out,
		DecodeHook: func(from reflect.Type, to reflect.Type, data any) (any, error) {
			if to == point3DType && from != point3DType {
				return domain.AsPoint(data)
			}
			return data, nil
		},
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}
	return nil
}
