package remote

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ghodss/yaml"
	goversion "github.com/hashicorp/go-version"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/stagecheck/stagecheck/pkg/errors"
	"github.com/stagecheck/stagecheck/pkg/version"
)

// DefaultConfigPath is where commands look for the target config unless
// told otherwise.
const DefaultConfigPath = "stagecheck.yaml"

// parseConfigErrTemplate is a template for when the CLI fails to parse
// target configuration files. This can happen for a multitude of reasons,
// including extraneous fields and incorrect field types. However, the yaml
// library constructs errors in a way that loses context, and so we can only
// pass the error message on.
const parseConfigErrTemplate = "Target configuration file could not be parsed. " +
	"Please review %q.\n" +
	"Common pitfalls include:\n" +
	" - Using the wrong types for fields\n" +
	" - Having extra fields inside the config file\n\n" +
	"For reference, here is the error from the parser:\n" +
	"%s"

// Mocked out for unit testing.
var (
	fs            = afero.NewOsFs()
	homedirExpand = homedir.Expand
	getenv        = os.Getenv
	toolVersion   = func() string { return version.Version }
)

// Config describes a deployment target. The file parses as YAML or plain
// JSON.
type Config struct {
	// Project names the target for backups and reports. It defaults to the
	// config file's name without its extension.
	Project string `json:"project,omitempty"`

	// Host and Port locate the FTP server. Port defaults to 21.
	Host string `json:"host"`
	Port int    `json:"port,omitempty"`

	// User, and either Password or PasswordEnv, are the login credentials.
	// PasswordEnv names an environment variable to read the password from,
	// so the config file doesn't have to hold the secret itself.
	User        string `json:"user,omitempty"`
	Password    string `json:"password,omitempty"`
	PasswordEnv string `json:"passwordEnv,omitempty"`

	// RemoteRoot is the directory on the server that deployment paths are
	// relative to. Defaults to "/".
	RemoteRoot string `json:"remoteRoot,omitempty"`

	// DisableTLS downgrades the connection to plain FTP. The default is
	// explicit TLS with protected data connections.
	DisableTLS bool `json:"disableTLS,omitempty"`

	// TimeoutSeconds bounds the connection dial. Defaults to 30.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`

	// RequiredVersion optionally constrains which releases of this tool may
	// deploy to the target, e.g. ">= 1.2.0". Teams use it to keep everyone
	// deploying with the same behavior.
	RequiredVersion string `json:"requiredVersion,omitempty"`
}

// ParseConfig reads and validates the target config at the given path.
func ParseConfig(configPath string) (Config, error) {
	expandedPath, err := homedirExpand(configPath)
	if err != nil {
		return Config{}, errors.WithContext(err, "expand config path")
	}

	contents, err := afero.ReadFile(fs, expandedPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, errors.NewFriendlyError("The target config file "+
				"doesn't exist at %q. Please run `stagecheck config` to "+
				"create one.", configPath)
		}
		return Config{}, errors.WithContext(err, "read file")
	}

	var config Config
	if err := yaml.Unmarshal(contents, &config); err != nil {
		return Config{}, errors.NewFriendlyError(parseConfigErrTemplate, configPath, err)
	}

	// Do a strict unmarshal to check for any extra fields, which usually
	// mean a misspelled option.
	if err := yaml.UnmarshalStrict(contents, &config, yaml.DisallowUnknownFields); err != nil {
		return Config{}, errors.NewFriendlyError(parseConfigErrTemplate, configPath, err)
	}

	if config.Host == "" {
		return Config{}, errors.MissingFieldError{Field: "host"}
	}

	if config.Project == "" {
		base := filepath.Base(expandedPath)
		config.Project = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if config.Port == 0 {
		config.Port = 21
	}
	if config.RemoteRoot == "" {
		config.RemoteRoot = "/"
	}
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = 30
	}

	if config.Password == "" && config.PasswordEnv != "" {
		config.Password = getenv(config.PasswordEnv)
		if config.Password == "" {
			return Config{}, errors.NewFriendlyError("The config file %q reads "+
				"the password from the environment variable %q, but it isn't "+
				"set.", configPath, config.PasswordEnv)
		}
	}

	if err := checkRequiredVersion(config.RequiredVersion, toolVersion()); err != nil {
		return Config{}, err
	}
	return config, nil
}

// WriteConfig writes the given target config to disk.
func WriteConfig(config Config, configPath string) error {
	expandedPath, err := homedirExpand(configPath)
	if err != nil {
		return errors.WithContext(err, "expand config path")
	}

	contents, err := yaml.Marshal(config)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	// The file may hold a password, so keep it private to the owner.
	if err := afero.WriteFile(fs, expandedPath, contents, 0600); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// checkRequiredVersion enforces a target's requiredVersion constraint
// against the running release. Development builds skip the check since they
// don't carry a comparable version.
func checkRequiredVersion(constraintStr, current string) error {
	if constraintStr == "" || current == version.EmptyValue {
		return nil
	}

	constraint, err := goversion.NewConstraint(constraintStr)
	if err != nil {
		return errors.NewFriendlyError("The target's requiredVersion %q is "+
			"not a valid version constraint: %s", constraintStr, err)
	}

	currentVersion, err := goversion.NewVersion(current)
	if err != nil {
		return errors.WithContext(err, "parse current version")
	}

	if !constraint.Check(currentVersion) {
		return errors.NewFriendlyError("This target requires stagecheck %s, "+
			"but this is %s. Install a matching release and retry.",
			constraintStr, current)
	}
	return nil
}
