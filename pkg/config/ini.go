package config

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// iniCodec maps INI sections onto nested viper keys. Section and option
// names are lowercased so [User-Agent] name resolves as "user-agent.name".
type iniCodec struct{}

func (iniCodec) Decode(b []byte, v map[string]any) error {
	// Comment symbols start a comment only after a space, so tokens keep them.
	file, err := ini.LoadSources(ini.LoadOptions{SpaceBeforeInlineComment: true}, b)
	if err != nil {
		return fmt.Errorf("parse ini: %w", err)
	}

	for _, section := range file.Sections() {
		keys := section.Keys()
		if len(keys) == 0 {
			continue
		}

		target := v

		if section.Name() != ini.DefaultSection {
			name := strings.ToLower(section.Name())

			nested, ok := v[name].(map[string]any)
			if !ok {
				nested = make(map[string]any, len(keys))
				v[name] = nested
			}

			target = nested
		}

		for _, key := range keys {
			target[strings.ToLower(key.Name())] = key.Value()
		}
	}

	return nil
}

func (iniCodec) Encode(v map[string]any) ([]byte, error) {
	file := ini.Empty()

	for name, value := range v {
		values, ok := value.(map[string]any)
		if !ok {
			file.Section(ini.DefaultSection).Key(name).SetValue(fmt.Sprint(value))

			continue
		}

		section, err := file.NewSection(name)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", name, err)
		}

		for key, val := range values {
			if _, err := section.NewKey(key, fmt.Sprint(val)); err != nil {
				return nil, fmt.Errorf("key %s.%s: %w", name, key, err)
			}
		}
	}

	var buf bytes.Buffer

	if _, err := file.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write ini: %w", err)
	}

	return buf.Bytes(), nil
}

func newViper() *viper.Viper {
	registry := viper.NewCodecRegistry()
	// RegisterCodec never fails on the default registry.
	_ = registry.RegisterCodec(configType, iniCodec{})

	return viper.NewWithOptions(viper.WithCodecRegistry(registry))
}
