package playbook

import (
	"fmt"

	"github.com/viant/remediator/model"
	"gopkg.in/yaml.v3"
)

// DecodeYAML parses a playbook document.
func DecodeYAML(data []byte) (*model.Playbook, error) {
	ret := &model.Playbook{}
	if err := yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to decode playbook: %w", err)
	}
	if ret.ID == "" {
		return nil, fmt.Errorf("playbook id is required")
	}
	return ret, nil
}

// EncodeYAML renders a playbook document.
func EncodeYAML(pb *model.Playbook) ([]byte, error) {
	return yaml.Marshal(pb)
}
