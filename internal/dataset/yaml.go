package dataset

import (
	"bytes"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadYAML reads and validates a YAML fixture of the form
//
//	anchors:
//	  - id: 1
//	    x: 7.0
//	    y: 51.0
//	    features:
//	      - {id: 10, category: building, area: 120, compactness: 0.8, distance: 12, azimuth: 45}
func LoadYAML(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", path)
	}
	return ParseYAML(data)
}

// ParseYAML decodes and validates fixture bytes. Unknown keys are rejected.
func ParseYAML(data []byte) (*Dataset, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Dataset
	if err := dec.Decode(&d); err != nil {
		return nil, eris.Wrap(err, "dataset: parse yaml")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
