package doctor

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// exampleFiles list the variables a project expects.
var exampleFiles = []string{".env.example", ".env.sample", ".env.template"}

// envFiles define variables for local runs, later files winning.
var envFiles = []string{".env", ".env.local", ".env.development", ".env.development.local"}

// EnvStatus compares the variables a project documents with the ones it
// has.
type EnvStatus struct {
	ExampleFile string
	Expected    []string
	Missing     []string
}

// CheckEnv reports variables named in the project's example env file that
// are neither in one of its env files nor in environ.
func CheckEnv(dir string, environ []string) (EnvStatus, error) {
	var status EnvStatus
	var expected map[string]string
	for _, name := range exampleFiles {
		vars, err := ReadEnvFile(filepath.Join(dir, name))
		if err != nil {
			return status, err
		}
		if len(vars) > 0 {
			status.ExampleFile, expected = name, vars
			break
		}
	}
	if expected == nil {
		return status, nil
	}

	defined := make(map[string]bool)
	for _, kv := range environ {
		if k, _, ok := strings.Cut(kv, "="); ok {
			defined[k] = true
		}
	}
	for _, name := range envFiles {
		vars, err := ReadEnvFile(filepath.Join(dir, name))
		if err != nil {
			return status, err
		}
		for k := range vars {
			defined[k] = true
		}
	}

	for k := range expected {
		status.Expected = append(status.Expected, k)
		if !defined[k] {
			status.Missing = append(status.Missing, k)
		}
	}
	sort.Strings(status.Expected)
	sort.Strings(status.Missing)
	return status, nil
}

// ReadEnvFile reads an .env file and returns defined variables. A missing
// file yields no variables.
func ReadEnvFile(envPath string) (map[string]string, error) {
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	return godotenv.Read(envPath)
}
