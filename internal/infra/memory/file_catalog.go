package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"hr-testing-service/internal/domain"
)

type catalogFile struct {
	Tests []domain.TestDefinition `yaml:"tests"`
}

// LoadCatalogFile reads test definitions from a YAML file into a StaticCatalogLoader.
// Child ids (settings, questions, options) are filled in from their parents.
func LoadCatalogFile(path string) (*StaticCatalogLoader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	seen := make(map[int64]struct{}, len(file.Tests))
	for i := range file.Tests {
		def := &file.Tests[i]
		if def.Test.ID <= 0 {
			return nil, fmt.Errorf("catalog %s: test #%d has no id", path, i+1)
		}
		if _, dup := seen[def.Test.ID]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate test id %d", path, def.Test.ID)
		}
		seen[def.Test.ID] = struct{}{}

		def.Settings.TestID = def.Test.ID
		for j := range def.Questions {
			q := &def.Questions[j]
			q.TestID = def.Test.ID
			for k := range q.Options {
				q.Options[k].QuestionID = q.ID
			}
		}
	}
	return NewStaticCatalogLoader(file.Tests...), nil
}
