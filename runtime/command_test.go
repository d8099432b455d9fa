package runtime

import (
	"strings"
	"testing"

	"github.com/justapithecus/planalign/config"
)

func TestBuildLaunchSpec_YearRangeForms(t *testing.T) {
	engine := config.EngineConfig{Command: "planalign"}

	spec := BuildLaunchSpec(engine, "/ws/config.yaml", "/ws/simulation.duckdb", 2025, 2027)
	want := []string{"simulate", "2025-2027", "--config", "/ws/config.yaml", "--database", "/ws/simulation.duckdb", "--verbose"}
	if strings.Join(spec.Args, " ") != strings.Join(want, " ") {
		t.Errorf("unexpected args %v", spec.Args)
	}

	single := BuildLaunchSpec(engine, "/c", "/d", 2025, 2025)
	if single.Args[1] != "2025" {
		t.Errorf("single-year range must collapse, got %q", single.Args[1])
	}
}

func TestBuildLaunchSpec_ModuleInvocation(t *testing.T) {
	engine := config.EngineConfig{
		Command:    "python",
		Args:       []string{"-m", "planalign_cli.main"},
		WorkingDir: "/opt/planalign",
	}

	spec := BuildLaunchSpec(engine, "/c", "/d", 2025, 2026)
	if spec.Command != "python" || spec.Args[0] != "-m" || spec.Args[2] != "simulate" {
		t.Errorf("engine args must precede the simulate verb, got %v", spec.Args)
	}
	if spec.WorkingDir != "/opt/planalign" {
		t.Errorf("unexpected working dir %q", spec.WorkingDir)
	}
}

func TestBuildLaunchSpec_EnvironmentDisablesTTYFormatting(t *testing.T) {
	spec := BuildLaunchSpec(config.EngineConfig{Command: "planalign"}, "/c", "/d", 2025, 2026)

	env := map[string]string{}
	for _, entry := range spec.Env {
		key, value, _ := strings.Cut(entry, "=")
		env[key] = value
	}

	for key, want := range map[string]string{
		"TERM":             "dumb",
		"NO_COLOR":         "1",
		"FORCE_COLOR":      "0",
		"COLUMNS":          "200",
		"PYTHONIOENCODING": "utf-8",
	} {
		if env[key] != want {
			t.Errorf("expected %s=%s, got %q", key, want, env[key])
		}
	}
}
