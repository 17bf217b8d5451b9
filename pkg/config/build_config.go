package config

// BuildConfig describes the site build pipeline run by the Host
type BuildConfig struct {
	WorkDir string       `yaml:"work_dir"`
	Stages  []BuildStage `yaml:"stages"`
}

// BuildStage is one command of the pipeline
type BuildStage struct {
	Name    string            `yaml:"name"`
	Command []string          `yaml:"command"`
	Env     map[string]string `yaml:"env"`
}
