package coordinator

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/formflow/internal/template"
)

// sampleFile is the document form of a samples file:
//
//	samples:
//	  - {P10-HS: 5, AscorbicAcid0-1M: 4.99}
type sampleFile struct {
	Samples []template.Sample `yaml:"samples"`
}

// LoadSamples reads sample compositions from a YAML or JSON file. The
// file is either a list of material-to-amount maps or a document with a
// "samples" list. A path of "-" reads stdin.
func LoadSamples(path string) ([]template.Sample, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path) //nolint:gosec // path comes from the command line
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read samples %s: %w", path, err)
	}
	return ParseSamples(data)
}

// ParseSamples decodes sample compositions.
func ParseSamples(data []byte) ([]template.Sample, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("no samples")
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("invalid samples: %w", err)
	}

	var samples []template.Sample
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.MappingNode {
		var doc sampleFile
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("invalid samples: %w", err)
		}
		samples = doc.Samples
	} else if err := node.Decode(&samples); err != nil {
		return nil, fmt.Errorf("invalid samples: %w", err)
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples")
	}
	return samples, nil
}
