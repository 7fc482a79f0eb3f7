package detector

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

// startSleep starts a sleep process that is killed and reaped on cleanup.
func startSleep(t *testing.T, dur string) *exec.Cmd {
	t.Helper()
	// #nosec G204
	cmd := exec.Command("sleep", dur)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleep: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd
}

func TestReadPIDFile(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name    string
		content string
		want    int
		invalid bool
	}{
		{"plain", "123", 123, false},
		{"trailing newline", "456\n", 456, false},
		{"crlf and extra lines", "789\r\nignored\n", 789, false},
		{"padded", "  42  \n", 42, false},
		{"empty", "", 0, true},
		{"garbage", "abc", 0, true},
		{"zero", "0", 0, true},
		{"negative", "-5", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := filepath.Join(dir, tc.name)
			if err := os.WriteFile(p, []byte(tc.content), 0o600); err != nil {
				t.Fatal(err)
			}
			pid, err := ReadPIDFile(p)
			if tc.invalid {
				if !errors.Is(err, ErrInvalidPID) {
					t.Fatalf("expected ErrInvalidPID, got pid=%d err=%v", pid, err)
				}
				return
			}
			if err != nil || pid != tc.want {
				t.Fatalf("got pid=%d err=%v, want %d", pid, err, tc.want)
			}
		})
	}

	if _, err := ReadPIDFile(filepath.Join(dir, "missing")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestPIDFileDetector(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	pidfile := filepath.Join(dir, "p.pid")
	d := PIDFileDetector{PIDFile: pidfile}

	// not exists -> false,nil
	alive, err := d.Alive()
	if err != nil || alive {
		t.Fatalf("expected false,nil for missing file, got %v %v", alive, err)
	}

	// invalid content -> error
	if err := os.WriteFile(pidfile, []byte("abc"), 0o600); err != nil {
		t.Fatal(err)
	}
	if alive, err = d.Alive(); err == nil {
		t.Fatalf("expected error for invalid pid, got alive=%v", alive)
	}

	// current process -> alive
	if err := os.WriteFile(pidfile, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		t.Fatal(err)
	}
	alive, err = d.Alive()
	if err != nil || !alive {
		t.Fatalf("expected own pid alive, got %v %v", alive, err)
	}
	if d.Describe() != "pidfile:"+pidfile {
		t.Fatalf("Describe mismatch: %q", d.Describe())
	}
}

func TestPIDFileDetector_ExitedProcess(t *testing.T) {
	requireUnix(t)
	// #nosec G204
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run true: %v", err)
	}
	pidfile := filepath.Join(t.TempDir(), "gone.pid")
	if err := os.WriteFile(pidfile, []byte(strconv.Itoa(cmd.Process.Pid)), 0o600); err != nil {
		t.Fatal(err)
	}
	alive, err := (PIDFileDetector{PIDFile: pidfile}).Alive()
	if err != nil {
		t.Fatalf("Alive error: %v", err)
	}
	if alive {
		t.Fatalf("expected reaped process to be reported dead")
	}
}

func TestPIDFileDetector_OldRecordStillAlive(t *testing.T) {
	requireUnix(t)
	cmd := startSleep(t, "5")
	pidfile := filepath.Join(t.TempDir(), "old.pid")
	if err := os.WriteFile(pidfile, []byte(strconv.Itoa(cmd.Process.Pid)), 0o600); err != nil {
		t.Fatal(err)
	}
	// an mtime behind the process start (lagging file server clock, clock step)
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(pidfile, old, old); err != nil {
		t.Fatal(err)
	}
	if alive, err := (PIDFileDetector{PIDFile: pidfile}).Alive(); err != nil || !alive {
		t.Fatalf("expected live owner regardless of mtime, got %v %v", alive, err)
	}
}

func TestPIDFileDetector_CheckReuse(t *testing.T) {
	requireUnix(t)
	cmd := startSleep(t, "5")
	pid := cmd.Process.Pid
	time.Sleep(20 * time.Millisecond)
	if getProcStartUnix(pid) == 0 {
		t.Skip("process start time unavailable on this platform")
	}

	pidfile := filepath.Join(t.TempDir(), "old.pid")
	if err := os.WriteFile(pidfile, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		t.Fatal(err)
	}
	d := PIDFileDetector{PIDFile: pidfile, CheckReuse: true}
	if alive, err := d.Alive(); err != nil || !alive {
		t.Fatalf("expected alive for fresh record, got %v %v", alive, err)
	}

	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(pidfile, old, old); err != nil {
		t.Fatal(err)
	}
	alive, err := d.Alive()
	if alive || !errors.Is(err, ErrPIDReused) {
		t.Fatalf("expected reused pid to be reported dead with ErrPIDReused, got %v %v", alive, err)
	}
}

func TestPIDAlive_Zombie(t *testing.T) {
	requireUnix(t)
	if runtime.GOOS != "linux" {
		t.Skip("zombie detection test relies on /proc")
	}
	// #nosec G204
	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = cmd.Wait() }()
	pid := cmd.Process.Pid

	// not reaped yet: it lingers as a zombie until Wait
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !isZombie(pid) {
		time.Sleep(10 * time.Millisecond)
	}
	if !isZombie(pid) {
		t.Skip("child did not reach zombie state in time")
	}
	if PIDAlive(pid) {
		t.Fatalf("zombie pid %d reported alive", pid)
	}
}

func TestPIDDetector(t *testing.T) {
	requireUnix(t)
	d := PIDDetector{PID: os.Getpid()}
	if alive, _ := d.Alive(); !alive {
		t.Fatalf("own pid should be alive")
	}
	if alive, _ := (PIDDetector{PID: 0}).Alive(); alive {
		t.Fatalf("pid 0 must never be alive")
	}
	if d.Describe() != "pid:"+strconv.Itoa(os.Getpid()) {
		t.Fatalf("Describe mismatch: %q", d.Describe())
	}
}

// FuzzPIDFileDetector_Alive ensures arbitrary record contents never panic.
func FuzzPIDFileDetector_Alive(f *testing.F) {
	f.Add("123\n", true)
	f.Add("not-a-number\n", false)
	f.Add("\n\n{}\n", false)
	f.Fuzz(func(t *testing.T, content string, addNL bool) {
		pf := filepath.Join(t.TempDir(), "fuzz.pid")
		if addNL {
			content += "\n"
		}
		_ = os.WriteFile(pf, []byte(content), 0o600)
		_, _ = (PIDFileDetector{PIDFile: pf}).Alive()
	})
}
