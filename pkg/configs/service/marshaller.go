package service

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// load relmond config from a file.
//
// `${NAME}` in the file is replaced with the environment variable NAME.
//
// returns *ServiceConfig, error:
//
//	When loading success, returns `(*ServiceConfig, nil)`.
//	Otherwise, returns `(nil, error)`.
func LoadServiceConfig(filepath string) (*ServiceConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content, os.LookupEnv)
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Expand replaces `${NAME}` with the value given by lookup.
//
// Unknown names are errors.
func Expand(conf []byte, lookup func(string) (string, bool)) ([]byte, error) {
	missing := []string{}
	expanded := placeholder.ReplaceAllFunc(conf, func(m []byte) []byte {
		name := string(placeholder.FindSubmatch(m)[1])
		v, ok := lookup(name)
		if !ok {
			missing = append(missing, name)
			return m
		}
		return []byte(v)
	})
	if len(missing) != 0 {
		return nil, fmt.Errorf("environment variables are not set: %v", missing)
	}
	return expanded, nil
}

// Unmarshal parses and seals config.
//
// Misconfigurations are returned as errors, with the path of the key.
func Unmarshal(conf []byte, lookup func(string) (string, bool)) (out *ServiceConfig, err error) {
	conf, err = Expand(conf, lookup)
	if err != nil {
		return nil, err
	}

	var _out *ServiceConfigMarshall
	if err := yaml.Unmarshal(conf, &_out); err != nil {
		return nil, err
	}
	if _out == nil {
		return nil, fmt.Errorf("config is empty")
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("misconfiguration: %v", r)
		}
	}()
	out = TrySeal(_out)
	return out, nil
}
