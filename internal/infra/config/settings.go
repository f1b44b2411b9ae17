package config

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// DecodeSettings decodes a provider or filter settings map into T, applies
// its default tags and validates it. Unknown keys are rejected.
func DecodeSettings[T any](settings map[string]any) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &out,
		ErrorUnused: true,
	})
	if err != nil {
		return out, errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return out, errors.Wrap(err, "failed to decode settings")
	}

	if err := defaults.Set(&out); err != nil {
		return out, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return out, errors.Wrap(err, "validation failed")
	}
	return out, nil
}
