package cluster

import (
	_ "embed"
	"fmt"
	"os"

	batchv1 "k8s.io/api/batch/v1"
	"sigs.k8s.io/yaml"
)

// Template variables substituted into a job template.
const (
	VarJobName    = "JOBNAME"
	VarModelBlack = "MODEL_BLACK"
	VarModelWhite = "MODEL_WHITE"
	VarBucket     = "BUCKET_NAME"
	VarImage      = "EVAL_IMAGE"
)

//go:embed job.yaml
var defaultTemplate []byte

// DefaultTemplate returns the built-in evaluator job template.
func DefaultTemplate() []byte {
	out := make([]byte, len(defaultTemplate))
	copy(out, defaultTemplate)
	return out
}

// LoadTemplate reads a job template from path, or returns the built-in one
// when path is empty. The template is rendered once with placeholder values
// so that a broken file fails at startup rather than on the first match.
func LoadTemplate(path string) ([]byte, error) {
	if path == "" {
		return DefaultTemplate(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job template: %w", err)
	}
	probe := map[string]string{
		VarJobName:    "probe",
		VarModelBlack: "black",
		VarModelWhite: "white",
		VarBucket:     "bucket",
		VarImage:      "image",
	}
	if _, err := RenderJob(raw, probe); err != nil {
		return nil, fmt.Errorf("job template %s: %w", path, err)
	}
	return raw, nil
}

// RenderJob substitutes ${VAR} placeholders in tmpl and decodes the result
// into a Job. Unknown placeholders are left as they are.
func RenderJob(tmpl []byte, vars map[string]string) (*batchv1.Job, error) {
	expanded := os.Expand(string(tmpl), func(key string) string {
		if v, ok := vars[key]; ok {
			return v
		}
		return "${" + key + "}"
	})

	var job batchv1.Job
	if err := yaml.Unmarshal([]byte(expanded), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	if job.Kind != "" && job.Kind != "Job" {
		return nil, fmt.Errorf("template kind is %q, want Job", job.Kind)
	}
	if job.Name == "" {
		return nil, fmt.Errorf("template has no metadata.name")
	}
	return &job, nil
}
