package spec

// Spec is the root object that holds the entire configuration for a dockbox
// batch run. It's populated by parsing the user's dockbox.yaml file.
type Spec struct {
	APIVersion string   `yaml:"apiVersion" validate:"required"`
	Kind       string   `yaml:"kind" validate:"required,eq=Session"`
	Metadata   Metadata `yaml:"metadata" validate:"required"`
	Session    Session  `yaml:"session" validate:"required"`
	Commands   []string `yaml:"commands" validate:"required,min=1,dive,required"`
}

// Metadata contains run-level metadata.
type Metadata struct {
	Name        string            `yaml:"name" validate:"required"`
	Description string            `yaml:"description"`
	Labels      map[string]string `yaml:"labels,omitempty"`
}

// Session configures the container the commands run in. Env and Volumes are
// passed through to the engine client unchanged.
type Session struct {
	Engine         string            `yaml:"engine" validate:"omitempty,oneof=docker"`
	Image          string            `yaml:"image" validate:"required"`
	NamePrefix     string            `yaml:"namePrefix"`
	TimeoutSeconds int               `yaml:"timeoutSeconds" validate:"omitempty,gt=0"`
	Privileged     bool              `yaml:"privileged"`
	CombineOutput  bool              `yaml:"combineOutput"`
	WorkingDir     string            `yaml:"workingDir"`
	Env            map[string]string `yaml:"env,omitempty"`
	Volumes        map[string]string `yaml:"volumes,omitempty"`
}
