package settings

import (
	"gopkg.in/yaml.v3"
)

type yamlParser struct{}

// YAMLParser returns a koanf parser backed by yaml.v3.
func YAMLParser() *yamlParser {
	return &yamlParser{}
}

func (p *yamlParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, nil
}

func (p *yamlParser) Marshal(o map[string]interface{}) ([]byte, error) {
	return yaml.Marshal(o)
}
