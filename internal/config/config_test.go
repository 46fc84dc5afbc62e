package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// unsetEnvForTest unsets an environment variable and restores it after the test.
func unsetEnvForTest(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	unsetEnvForTest(t, "NVM_HOME")
	unsetEnvForTest(t, "NVM_DIR")
	unsetEnvForTest(t, "APPRUNNER_NVM_DIR")
	unsetEnvForTest(t, "APPRUNNER_STOP_GRACE_PERIOD")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got, want := cfg.NVMDir(), filepath.Join(home, ".nvm", "versions", "node"); got != want {
		t.Errorf("NVMDir() = %q, want %q", got, want)
	}
	if !reflect.DeepEqual(cfg.RunnerCommands(), DefaultRunnerCommands) {
		t.Errorf("RunnerCommands() = %v", cfg.RunnerCommands())
	}
	if cfg.GracePeriod() != DefaultGracePeriod || cfg.KillWait() != DefaultKillWait || cfg.StartTimeout() != DefaultStartTimeout {
		t.Errorf("timeouts = %s/%s/%s", cfg.GracePeriod(), cfg.KillWait(), cfg.StartTimeout())
	}
	if cfg.LogLevel() != DefaultLogLevel {
		t.Errorf("LogLevel() = %q", cfg.LogLevel())
	}
	services, err := cfg.Services()
	if err != nil || len(services) != 0 {
		t.Errorf("Services() = %v, %v", services, err)
	}
}

func TestLoad_NVMHome(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NVM_HOME", "/opt/nvm")
	unsetEnvForTest(t, "APPRUNNER_NVM_DIR")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.NVMDir() != "/opt/nvm" {
		t.Errorf("NVMDir() = %q", cfg.NVMDir())
	}
}

func TestLoad_LegacyJSON(t *testing.T) {
	unsetEnvForTest(t, "APPRUNNER_NVM_DIR")
	path := writeConfig(t, "config.json", `{
    "NVM_DIR": "D:\\window\\nvm",
    "DEFAULT_PROJECT_DIR": "D:\\front",
    "RUNNER_COMMANDS": ["yarn dev", "npm run dev"],
    "SERVICES": [
        {"SERVICE_NAME": "admin", "SERVICE_DIR": "D:\\front\\admin", "NODE_VERSION": "16.20.2", "RUN_COMMAND": "yarn dev", "NMP_INSTALL": true},
        {"SERVICE_NAME": "shop", "SERVICE_DIR": "D:\\front\\shop", "NODE_VERSION": "v18.17.0", "RUN_COMMAND": "npm run serve"}
    ]
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ConfigFile() != path {
		t.Errorf("ConfigFile() = %q", cfg.ConfigFile())
	}
	if cfg.NVMDir() != `D:\window\nvm` {
		t.Errorf("NVMDir() = %q", cfg.NVMDir())
	}
	if !reflect.DeepEqual(cfg.RunnerCommands(), []string{"yarn dev", "npm run dev"}) {
		t.Errorf("RunnerCommands() = %v", cfg.RunnerCommands())
	}

	admin, err := cfg.Service("ADMIN")
	if err != nil {
		t.Fatalf("Service() error = %v", err)
	}
	if admin.Dir != `D:\front\admin` || admin.RunCommand != "yarn dev" {
		t.Errorf("admin = %+v", admin)
	}
	if admin.Version() != "v16.20.2" || !admin.InstallRequested() {
		t.Errorf("admin version %q install %v", admin.Version(), admin.InstallRequested())
	}

	shop, err := cfg.Service("shop")
	if err != nil {
		t.Fatalf("Service() error = %v", err)
	}
	if shop.Version() != "v18.17.0" || shop.InstallRequested() {
		t.Errorf("shop = %+v", shop)
	}

	if _, err := cfg.Service("missing"); !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("Service(missing) error = %v", err)
	}
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
nvm_dir: /home/dev/.nvm/versions/node
stop:
  grace_period: 2s
  kill_wait: 1500ms
log:
  level: debug
services:
  - service_name: api-docs
    service_dir: /src/docs
    run_command: npm run dev
    npm_install: true
`)
	t.Setenv("APPRUNNER_NVM_DIR", "/override")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.NVMDir() != "/override" {
		t.Errorf("NVMDir() = %q, want env override", cfg.NVMDir())
	}
	if cfg.GracePeriod() != 2*time.Second || cfg.KillWait() != 1500*time.Millisecond {
		t.Errorf("GracePeriod() = %s, KillWait() = %s", cfg.GracePeriod(), cfg.KillWait())
	}
	if cfg.LogLevel() != "debug" {
		t.Errorf("LogLevel() = %q", cfg.LogLevel())
	}
	svc, err := cfg.Service("api-docs")
	if err != nil || !svc.InstallRequested() || svc.Version() != "" {
		t.Errorf("Service() = %+v, %v", svc, err)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestProjects(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"admin", "shop"} {
		if err := os.Mkdir(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, "config.yaml", "default_project_dir: "+root+"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got, err := cfg.Projects()
	if err != nil {
		t.Fatalf("Projects() error = %v", err)
	}
	want := []string{filepath.Join(root, "admin"), filepath.Join(root, "shop")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Projects() = %v, want %v", got, want)
	}
}
