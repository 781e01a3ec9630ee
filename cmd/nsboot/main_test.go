//go:build linux

package main

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

const mainEnv = "NSBOOT_TEST_MAIN"

// The test binary doubles as nsboot so the end-to-end tests can re-execute it.
func TestMain(m *testing.M) {
	if os.Getenv(mainEnv) == "1" {
		main()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func runNsboot(t *testing.T, env ...string) (string, string) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("namespaces need root")
	}
	self, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(self, "-test.run=^$")
	cmd.Env = append(os.Environ(), mainEnv+"=1", "NSBOOT_NEW_ROOT="+filepath.Join(t.TempDir(), "croot"))
	cmd.Env = append(cmd.Env, env...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// the supervisor becomes the fallback program; its status is not the child's
	_ = cmd.Run()
	return stdout.String(), stderr.String()
}

func TestBootstrapReachesWorkload(t *testing.T) {
	stdout, stderr := runNsboot(t,
		`NSBOOT_WORKLOAD=/bin/sh -c "echo workload-marker"`,
		`NSBOOT_FALLBACK=/bin/sh -c "echo fallback-marker"`)

	order := []string{
		"Network configuration within the new network namespace:",
		"We are in the new PID namespace!",
		"We are in the new mount namespace!",
		"workload-marker",
	}
	last := -1
	for _, l := range order {
		i := strings.Index(stdout, l)
		if i < 0 {
			t.Fatalf("missing %q\nstdout:\n%s\nstderr:\n%s", l, stdout, stderr)
		}
		if i < last {
			t.Fatalf("%q out of order\nstdout:\n%s", l, stdout)
		}
		last = i
	}
	if !strings.Contains(stdout, "fallback-marker") {
		t.Fatalf("supervisor did not run the fallback\nstdout:\n%s", stdout)
	}
}

func TestBootstrapProcFailureStopsBeforeExec(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "nsboot.yaml")
	if err := os.WriteFile(cfgPath, []byte("proc_target: /nsboot-does-not-exist\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	stdout, stderr := runNsboot(t,
		"NSBOOT_CONFIG="+cfgPath,
		`NSBOOT_WORKLOAD=/bin/sh -c "echo workload-marker"`,
		`NSBOOT_FALLBACK=/bin/sh -c "sleep 1"`)

	if strings.Contains(stdout, "workload-marker") {
		t.Fatalf("workload ran after proc mount failure\nstdout:\n%s", stdout)
	}
	if !strings.Contains(stderr, "mount proc") {
		t.Fatalf("missing diagnostic\nstderr:\n%s", stderr)
	}
}
