package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stagecheck/stagecheck/cmd/util"
	"github.com/stagecheck/stagecheck/pkg/errors"
	"github.com/stagecheck/stagecheck/pkg/remote"
)

// Mocked for unit testing.
var (
	stdout            io.Writer = os.Stdout
	stdin             io.Reader = os.Stdin
	parseTargetConfig           = remote.ParseConfig
	stat                        = os.Stat
)

// New creates a new `config` command.
func New() *cobra.Command {
	var cliOpts remote.Config
	var targetPath string
	var force bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Set up a deployment target configuration",
		Run: func(_ *cobra.Command, _ []string) {
			if err := SetupConfig(targetPath, cliOpts, force); err != nil {
				err = errors.NewFriendlyError("Failed to set up configuration:\n%s", err)
				util.HandleFatalError(err)
			}
		},
	}
	cmd.PersistentFlags().StringVar(&targetPath, "target", remote.DefaultConfigPath,
		"Path of the target configuration file.")
	cmd.Flags().StringVar(&cliOpts.Host, "host", "",
		"Set the FTP host in the config. "+
			"Optional: If not set, `stagecheck config` will interactively prompt.")
	cmd.Flags().IntVar(&cliOpts.Port, "port", 0,
		"Set the FTP port in the config. "+
			"Optional: If not set, `stagecheck config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.User, "user", "",
		"Set the FTP user in the config. "+
			"Optional: If not set, `stagecheck config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.PasswordEnv, "password-env", "",
		"Set the environment variable to read the FTP password from. "+
			"Optional: If not set, `stagecheck config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.RemoteRoot, "remote-root", "",
		"Set the remote root directory in the config. "+
			"Optional: If not set, `stagecheck config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.Project, "project", "",
		"Set the project name in the config. "+
			"Optional: If not set, `stagecheck config` will interactively prompt.")
	cmd.Flags().BoolVar(&force, "force", false,
		"Overwrite an existing configuration without prompting.")

	// Setup the commands for querying the contents of the target config.
	type getterSpec struct {
		use, short string
		fn         func(remote.Config) string
	}

	getters := []getterSpec{
		{
			use:   "get-host",
			short: "Get the currently configured FTP host",
			fn:    func(cfg remote.Config) string { return cfg.Host },
		},
		{
			use:   "get-project",
			short: "Get the currently configured project name",
			fn:    func(cfg remote.Config) string { return cfg.Project },
		},
		{
			use:   "get-remote-root",
			short: "Get the currently configured remote root directory",
			fn:    func(cfg remote.Config) string { return cfg.RemoteRoot },
		},
	}
	for _, getter := range getters {
		getter := getter
		cmd.AddCommand(&cobra.Command{
			Use:   getter.use,
			Short: getter.short,
			Run: func(_ *cobra.Command, _ []string) {
				cfg, err := parseTargetConfig(targetPath)
				if err != nil {
					err = errors.WithContext(err, "read config")
					util.HandleFatalError(err)
				}

				fmt.Fprintln(stdout, getter.fn(cfg))
			},
		})
	}

	return cmd
}

// SetupConfig interactively builds a target configuration and writes it to
// disk.
func SetupConfig(path string, cliOpts remote.Config, force bool) error {
	if !force {
		if _, err := stat(path); err == nil {
			overwrite, err := util.PromptYesOrNo(
				fmt.Sprintf("%s already exists. Overwrite it?", path))
			if err != nil {
				return errors.WithContext(err, "overwrite prompt")
			}
			if !overwrite {
				fmt.Fprintln(stdout, "Keeping the existing configuration.")
				return nil
			}
		}
	}

	cfg, err := generateConfig(path, cliOpts)
	if err != nil {
		return errors.WithContext(err, "generate config")
	}

	if err := remote.WriteConfig(cfg, path); err != nil {
		return errors.WithContext(err, "write config")
	}

	fmt.Fprintf(stdout, "Wrote config to %s\n", path)
	return nil
}

func hostValidationFn(host string) (string, bool) {
	if strings.TrimSpace(host) == "" {
		return "The host can't be empty. Please enter a hostname.", false
	}
	return "", true
}

func portValidationFn(portStr string) (string, bool) {
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "Ports are numbers between 1 and 65535. Please pick another port.", false
	}
	return "", true
}

type prompt struct {
	helpString, prompt, defaultAnswer, currAnswer string
	field                                         *string
	validationFn                                  func(string) (string, bool)
}

// generateConfig interacts with the user to decide what the desired target
// configuration is. It makes best guesses at reasonable defaults, and allows
// users to explicitly override them if desired.
func generateConfig(path string, cliOpts remote.Config) (remote.Config, error) {
	currConfig, err := parseTargetConfig(path)
	if err != nil {
		currConfig = remote.Config{}
		log.WithError(err).Debug("Failed to read current config")
	}

	cfg := cliOpts

	var port string
	if cliOpts.Port != 0 {
		port = strconv.Itoa(cliOpts.Port)
	}
	var currPort string
	if currConfig.Port != 0 {
		currPort = strconv.Itoa(currConfig.Port)
	}

	var prompts []prompt
	if cliOpts.Host == "" {
		prompts = append(prompts, prompt{
			helpString:   "Enter the hostname of the FTP server to deploy to.",
			prompt:       "FTP host",
			currAnswer:   currConfig.Host,
			field:        &cfg.Host,
			validationFn: hostValidationFn,
		})
	}

	if port == "" {
		prompts = append(prompts, prompt{
			helpString:    "Enter the port of the FTP control connection.",
			prompt:        "FTP port",
			defaultAnswer: "21",
			currAnswer:    currPort,
			field:         &port,
			validationFn:  portValidationFn,
		})
	}

	if cliOpts.User == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the username to log in to the FTP server with.",
			prompt:     "FTP user",
			currAnswer: currConfig.User,
			field:      &cfg.User,
		})
	}

	if cliOpts.PasswordEnv == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the name of an environment variable that holds the FTP password.\n" +
				"Leave it empty to store the password in the config file instead.",
			prompt:     "Password environment variable",
			currAnswer: currConfig.PasswordEnv,
			field:      &cfg.PasswordEnv,
		})
	}

	if cliOpts.RemoteRoot == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the directory on the server that deployment " +
				"paths are relative to.",
			prompt:        "Remote root",
			defaultAnswer: "/",
			currAnswer:    currConfig.RemoteRoot,
			field:         &cfg.RemoteRoot,
		})
	}

	if cliOpts.Project == "" {
		base := filepath.Base(path)
		prompts = append(prompts, prompt{
			helpString: "Enter the project name. Backups and reports are " +
				"grouped by it.",
			prompt:        "Project name",
			defaultAnswer: strings.TrimSuffix(base, filepath.Ext(base)),
			currAnswer:    currConfig.Project,
			field:         &cfg.Project,
		})
	}

	for _, prompt := range prompts {
		var resp string
		for {
			resp, err = promptUser(prompt.helpString, prompt.prompt,
				prompt.defaultAnswer, prompt.currAnswer)
			if err != nil {
				return remote.Config{}, errors.WithContext(err, "read response")
			}

			if prompt.validationFn == nil {
				break
			}

			validationErr, ok := prompt.validationFn(resp)
			if ok {
				break
			}

			fmt.Fprintln(stdout, validationErr)
		}

		*prompt.field = resp
	}

	if port != "" {
		// portValidationFn already vetted the number.
		cfg.Port, _ = strconv.Atoi(port)
	}

	if cfg.PasswordEnv == "" && cfg.Password == "" {
		// The current password is deliberately not offered as an option,
		// since the options are echoed to the terminal.
		password, err := promptUser(
			"The password will be stored in the config file in plain text.\n"+
				"Prefer a password environment variable on shared machines.",
			"FTP password", "", "")
		if err != nil {
			return remote.Config{}, errors.WithContext(err, "read response")
		}
		cfg.Password = password
	}

	return cfg, nil
}

func promptUser(helpString, prompt, defaultAnswer, currAnswer string) (string, error) {
	// Display a new line at the end to separate different fields to make it
	// look clearer.
	defer fmt.Fprintln(stdout)

	options := []string{}
	if defaultAnswer != "" {
		options = append(options, defaultAnswer)
	}
	if currAnswer != "" && currAnswer != defaultAnswer {
		options = append(options, currAnswer)
	}
	options = append(options, "(Enter manually)")

	fmt.Fprintln(stdout, helpString+"\n"+prompt+":")

	stdinReader := bufio.NewReader(stdin)

	if nOptions := len(options); nOptions > 1 {
		// defaultAnswer or currAnswer exists.
		fmt.Fprintln(stdout)
		for i, option := range options {
			if i == 0 {
				option = fmt.Sprintf("%s (recommended)", option)
			}
			fmt.Fprintf(stdout, "\t%d. %s\n", i+1, option)
		}
		fmt.Fprintln(stdout)

		for {
			fmt.Fprintf(stdout, "Please choose one [1-%d]: ", nOptions)
			choiceStr, err := stdinReader.ReadString('\n')
			if err != nil {
				return "", err
			}

			var choice int
			choiceStr = strings.TrimRight(choiceStr, "\n")

			// Default to the first choice if user doesn't enter anything.
			if choiceStr == "" {
				choice = 1
			} else {
				choice, err = strconv.Atoi(choiceStr)
				if err != nil || choice < 1 || choice > nOptions {
					// Try again if the input is invalid.
					continue
				}
			}

			if choice == nOptions {
				// Enter manually.
				break
			}

			return options[choice-1], nil
		}
	}

	fmt.Fprint(stdout, "Please enter manually: ")
	resp, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimRight(resp, "\n"), nil
}
