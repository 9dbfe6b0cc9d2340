package utils

import (
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// DecodeAttributes fills `into` from an attribute map using the struct's json tags. Fields already
// set in `into` are kept unless the map overrides them, so callers can decode over defaults.
// Attributes that match no field are an error.
func DecodeAttributes(attributes map[string]interface{}, into interface{}) error {
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           into,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(attributes); err != nil {
		return err
	}
	if len(md.Unused) != 0 {
		sort.Strings(md.Unused)
		return errors.Errorf("unknown attributes %v", md.Unused)
	}
	return nil
}
