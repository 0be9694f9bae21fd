package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// templateFile is the on-disk layout of the template definitions file.
type templateFile struct {
	Templates []*Template `yaml:"templates"`
}

// LoadTemplates reads template definitions from a YAML file.
func LoadTemplates(path string) ([]*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "cannot read file", Cause: err}
	}

	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, &LoadError{FilePath: path, Message: "invalid YAML", Cause: err}
	}

	return tf.Templates, nil
}

// LoadRuleFiles reads rules from a YAML file or from every .yaml/.yml file
// in a directory, in lexical file order. Each file holds one or more
// top-level lists of rules; a top-level "protocol" block is metadata and is
// skipped, as are list entries without a rule_id.
func LoadRuleFiles(path string) ([]*Rule, error) {
	files, err := ruleFiles(path)
	if err != nil {
		return nil, err
	}

	var all []*Rule
	for _, file := range files {
		loaded, err := loadRuleFile(file)
		if err != nil {
			return nil, err
		}
		all = append(all, loaded...)
	}
	return all, nil
}

func ruleFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "cannot stat path", Cause: err}
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "cannot read directory", Cause: err}
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func loadRuleFile(path string) ([]*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "cannot read file", Cause: err}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{FilePath: path, Message: "invalid YAML", Cause: err}
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &LoadError{FilePath: path, Message: "top level must be a mapping"}
	}

	var out []*Rule
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i].Value, root.Content[i+1]
		if key == "protocol" || key == "templates" || value.Kind != yaml.SequenceNode {
			continue
		}
		for _, item := range value.Content {
			if item.Kind != yaml.MappingNode || !hasKey(item, "rule_id") {
				continue
			}
			var r Rule
			if err := item.Decode(&r); err != nil {
				return nil, &LoadError{
					FilePath: path,
					Message:  fmt.Sprintf("cannot decode rule at line %d", item.Line),
					Cause:    err,
				}
			}
			r.Source = path
			out = append(out, &r)
		}
	}
	return out, nil
}

func hasKey(node *yaml.Node, key string) bool {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}

// Load reads templates and rules and builds a Registry. The returned error
// is non-nil only when files cannot be read or parsed; invalid rule
// definitions are recorded in the registry and reported by ConfigErrors.
func Load(rulesPath, templatesPath string) (*Registry, error) {
	templates, err := LoadTemplates(templatesPath)
	if err != nil {
		return nil, err
	}

	rs, err := LoadRuleFiles(rulesPath)
	if err != nil {
		return nil, err
	}

	return NewRegistry(templates, rs), nil
}
