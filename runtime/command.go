package runtime

import (
	"fmt"
	"os"
	"strings"

	"github.com/justapithecus/planalign/config"
)

// BuildLaunchSpec assembles the engine invocation for one run:
//
//	<command> [args...] simulate <start>-<end> --config <path> --database <path> --verbose
//
// A single-year run passes just <start> as the range.
//
// The environment disables color and tty-sensitive formatting and widens
// the column budget so the stdout parser sees stable line shapes.
func BuildLaunchSpec(engine config.EngineConfig, configPath, databasePath string, startYear, endYear int) LaunchSpec {
	yearRange := fmt.Sprintf("%d-%d", startYear, endYear)
	if startYear == endYear {
		yearRange = fmt.Sprintf("%d", startYear)
	}

	args := append([]string{}, engine.Args...)
	args = append(args,
		"simulate", yearRange,
		"--config", configPath,
		"--database", databasePath,
		"--verbose",
	)

	return LaunchSpec{
		Command:    engine.Command,
		Args:       args,
		WorkingDir: engine.WorkingDir,
		Env:        buildEnv(),
	}
}

func buildEnv() []string {
	overrides := map[string]string{
		"PYTHONIOENCODING": "utf-8",
		"TERM":             "dumb",
		"NO_COLOR":         "1",
		"FORCE_COLOR":      "0",
		"COLUMNS":          "200",
	}

	env := make([]string, 0, len(os.Environ())+len(overrides))
	for _, entry := range os.Environ() {
		key, _, _ := strings.Cut(entry, "=")
		if _, shadowed := overrides[key]; shadowed {
			continue
		}
		env = append(env, entry)
	}
	for key, value := range overrides {
		env = append(env, key+"="+value)
	}
	return env
}
