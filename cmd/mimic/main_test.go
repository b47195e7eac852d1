package main

import (
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/mimic/internal/build"
	"github.com/MikeSquared-Agency/mimic/internal/config"
	"github.com/MikeSquared-Agency/mimic/internal/dataset"
)

func parse(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var pf pipelineFlags
	pf.register(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return pf.resolve(fs)
}

func TestResolve_Precedence(t *testing.T) {
	t.Setenv("MIMIC_MIN_MESSAGES", "30")
	t.Setenv("MIMIC_OWN_NAME", "FromEnv")
	t.Setenv("MIMIC_TURN_WINDOW", "")

	path := filepath.Join(t.TempDir(), "mimic.yaml")
	if err := os.WriteFile(path, []byte("own_name: FromFile\nturn_window: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := parse(t, "-config", path, "-turn-window", "2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.MinMessages != 30 {
		t.Errorf("env value should survive unset flags, got %d", cfg.MinMessages)
	}
	if cfg.OwnName != "FromFile" {
		t.Errorf("file should override env, got %q", cfg.OwnName)
	}
	if cfg.TurnWindow != 2 {
		t.Errorf("flag should override file, got %g", cfg.TurnWindow)
	}
}

func TestRegister_DefaultsMatchPipeline(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var pf pipelineFlags
	pf.register(fs)

	if got := fs.Lookup("turn-window").DefValue; got != "5" {
		t.Errorf("turn-window default = %s", got)
	}
	if pf.turnWindow != dataset.DefaultTurnWindow.Minutes() || pf.conversationGap != dataset.DefaultConversationGap.Minutes() {
		t.Errorf("window defaults %g / %g", pf.turnWindow, pf.conversationGap)
	}
	if pf.minMessages != dataset.DefaultMinTurns {
		t.Errorf("min-messages default = %d", pf.minMessages)
	}
}

func TestResolve_Aliases(t *testing.T) {
	t.Setenv("MIMIC_OWN_ALIASES", "")
	cfg, err := parse(t, "-own-aliases", "Pas, Pasqui", "-role-match", "fold")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(cfg.OwnAliases) != 2 || cfg.OwnAliases[1] != "Pasqui" {
		t.Errorf("aliases = %q", cfg.OwnAliases)
	}
	if role, _ := cfg.Classifier().Classify("PASQUI"); role != dataset.RoleAssistant {
		t.Errorf("folded alias role = %q", role)
	}
}

func TestResolve_Invalid(t *testing.T) {
	t.Setenv("MIMIC_TURN_WINDOW", "")
	t.Setenv("MIMIC_CONVERSATION_GAP", "")
	_, err := parse(t, "-turn-window", "60", "-conversation-gap", "60")
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}

	_, err = parse(t, "-config", filepath.Join(t.TempDir(), "missing.yaml"))
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != 2 {
		t.Errorf("expected exit code 2 for unreadable config, got %v", err)
	}
}

func TestFormatTerminal(t *testing.T) {
	r := &build.Report{Output: "my_dataset.jsonl"}
	text := formatTerminal(r)
	if !strings.HasPrefix(text, "=== Dataset Build Summary ===") {
		t.Errorf("unexpected header:\n%s", text)
	}
	if !strings.Contains(text, "my_dataset.jsonl") {
		t.Errorf("output path must be kept verbatim:\n%s", text)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b ,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("splitList = %q", got)
	}
}
