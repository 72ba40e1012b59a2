// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package consumer

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/mitchellh/mapstructure"
)

// authPrefixes select the client properties that are credentials or other
// security settings.
var authPrefixes = []string{"sasl.", "security.", "ssl."}

type clientProperties struct {
	Topic             string         `mapstructure:"topic"`
	Group             string         `mapstructure:"group.id"`
	Bootstrap         []string       `mapstructure:"bootstrap.servers"`
	KeyDeserializer   string         `mapstructure:"key.deserializer"`
	ValueDeserializer string         `mapstructure:"value.deserializer"`
	ClientID          string         `mapstructure:"client.id"`
	Rest              map[string]any `mapstructure:",remain"`
}

// FromProperties builds a ConsumerConfig from the property map a consumer
// client was created with, for use by ConfigExtractor implementations.
// Bootstrap servers may be given as a list or a comma separated string.
// Security properties go to Auth and everything else to Properties.
func FromProperties(props map[string]any) (ConsumerConfig, error) {
	var decoded clientProperties
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
			trimSpaceHook,
		),
		WeaklyTypedInput: true,
		Result:           &decoded,
	})
	if err != nil {
		return ConsumerConfig{}, errors.Trace(err)
	}
	if err := decoder.Decode(props); err != nil {
		return ConsumerConfig{}, errors.Annotate(err, "decoding consumer properties")
	}

	cfg := ConsumerConfig{
		Topic:             decoded.Topic,
		Group:             decoded.Group,
		Bootstrap:         decoded.Bootstrap,
		KeyDeserializer:   decoded.KeyDeserializer,
		ValueDeserializer: decoded.ValueDeserializer,
		ClientID:          decoded.ClientID,
	}
	keys := make([]string, 0, len(decoded.Rest))
	for k := range decoded.Rest {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fmt.Sprint(decoded.Rest[k])
		if isAuth(k) {
			if cfg.Auth == nil {
				cfg.Auth = make(map[string]string)
			}
			cfg.Auth[k] = v
			continue
		}
		if cfg.Properties == nil {
			cfg.Properties = make(map[string]string)
		}
		cfg.Properties[k] = v
	}
	return cfg, nil
}

func isAuth(key string) bool {
	for _, prefix := range authPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func trimSpaceHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf([]string{}) {
		return data, nil
	}
	values, ok := data.([]string)
	if !ok {
		return data, nil
	}
	trimmed := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			trimmed = append(trimmed, v)
		}
	}
	return trimmed, nil
}
