package retrieval

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/corpus.yaml
var bundledCorpus []byte

type corpusFile struct {
	Documents []struct {
		ID       string            `yaml:"id"`
		Category string            `yaml:"category"`
		Content  string            `yaml:"content"`
		Metadata map[string]string `yaml:"metadata"`
	} `yaml:"documents"`
}

// LoadCorpus reads a YAML knowledge base. An empty path loads the bundled one.
//
// File format:
//
//	documents:
//	  - id: ISSUE-1
//	    category: life_issue_sop
//	    content: |
//	      ISSUE 1: ...
func LoadCorpus(path string) ([]Document, error) {
	data := bundledCorpus
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read corpus: %w", err)
		}
	}
	return ParseCorpus(data)
}

// ParseCorpus decodes a YAML knowledge base.
func ParseCorpus(data []byte) ([]Document, error) {
	var f corpusFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode corpus: %w", err)
	}

	docs := make([]Document, 0, len(f.Documents))
	for i, d := range f.Documents {
		content := strings.TrimSpace(d.Content)
		if content == "" {
			return nil, fmt.Errorf("corpus document %d (%s): empty content", i, d.ID)
		}
		if d.Category == "" {
			return nil, fmt.Errorf("corpus document %d (%s): missing category", i, d.ID)
		}
		meta := map[string]string{"category": d.Category}
		if d.ID != "" {
			meta["id"] = d.ID
		}
		for k, v := range d.Metadata {
			if _, set := meta[k]; !set {
				meta[k] = v
			}
		}
		docs = append(docs, Document{Content: content, Metadata: meta})
	}
	return docs, nil
}
