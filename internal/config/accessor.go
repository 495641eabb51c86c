package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// toTree renders cfg as its JSON object tree; paths use the JSON field names.
func toTree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// lookup walks a dot-separated path and returns the section holding the leaf.
// The leaf itself may be absent when its field is omitted while empty.
func lookup(tree map[string]any, path string) (section map[string]any, leaf string, err error) {
	if path == "" {
		return nil, "", fmt.Errorf("empty path")
	}
	parts := strings.Split(path, ".")
	section = tree
	for _, key := range parts[:len(parts)-1] {
		next, ok := section[key].(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("unknown config section %q in %s", key, path)
		}
		section = next
	}
	return section, parts[len(parts)-1], nil
}

// GetByPath retrieves a config value by dot-notation path (e.g. "server.port").
// A section path returns the whole section.
func GetByPath(cfg *Config, path string) (any, error) {
	tree, err := toTree(cfg)
	if err != nil {
		return nil, err
	}
	section, leaf, err := lookup(tree, path)
	if err != nil {
		return nil, err
	}
	v, ok := section[leaf]
	if !ok {
		return nil, fmt.Errorf("key not found: %s", path)
	}
	return v, nil
}

// SetByPath sets a leaf value by dot-notation path. String input is coerced to
// the type of the current value, so "8080" sets a port while "972500000000"
// stays a string for a phone number ID. Keys the Config does not declare are
// rejected.
func SetByPath(cfg *Config, path string, value any) error {
	tree, err := toTree(cfg)
	if err != nil {
		return err
	}
	section, leaf, err := lookup(tree, path)
	if err != nil {
		return err
	}
	if _, isSection := section[leaf].(map[string]any); isSection {
		return fmt.Errorf("%s is a section, not a value", path)
	}

	v, err := coerce(section[leaf], value)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	section[leaf] = v

	data, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

// coerce converts string input to the JSON kind of current. Non-string input
// is used as is. An omitted (nil) current value accepts the string.
func coerce(current, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	switch current.(type) {
	case bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("expected true or false, got %q", s)
		}
		return b, nil
	case float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", s)
		}
		return f, nil
	default:
		return s, nil
	}
}

// Sanitize returns a copy of the config with sensitive values masked.
func Sanitize(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg // Return original on marshal error
	}
	var copy Config
	if err := json.Unmarshal(data, &copy); err != nil {
		return cfg
	}

	for _, secret := range []*string{
		&copy.Channels.WhatsApp.AccessToken,
		&copy.Channels.WhatsApp.VerifyToken,
		&copy.Channels.WhatsApp.AppSecret,
		&copy.Channels.Twilio.AuthToken,
		&copy.Channels.Telegram.Token,
		&copy.Channels.Telegram.SecretToken,
		&copy.Transcription.Google.APIKey,
		&copy.Transcription.Whisper.APIKey,
	} {
		if *secret != "" {
			*secret = maskString(*secret)
		}
	}
	if copy.Events.URL != "" {
		copy.Events.URL = maskURL(copy.Events.URL)
	}

	return &copy
}

// maskURL hides the password of a URL with userinfo.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every leaf path with its current value.
func ListPaths(cfg *Config) map[string]any {
	tree, err := toTree(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	flatten("", tree, out)
	return out
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		if prefix != "" {
			k = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(k, sub, out)
			continue
		}
		out[k] = v
	}
}
