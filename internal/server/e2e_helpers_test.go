//go:build !ci

package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	dockerImage           = "chromedp/headless-shell:stable"
	chromeContainerPrefix = "chrome-e2e-karigar-"
	chromeStartAttempts   = 120 // 500ms apart
)

// browser is a chromedp context backed by a headless Chrome container.
type browser struct {
	ctx  context.Context
	port int
}

// startBrowser runs headless Chrome in Docker and returns a chromedp context
// bounded by timeout. The container is removed when the test ends.
func startBrowser(t *testing.T, timeout time.Duration) *browser {
	t.Helper()

	if _, err := exec.Command("docker", "version").CombinedOutput(); err != nil {
		t.Skip("Docker not available, skipping E2E test")
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("Failed to allocate Chrome port: %v", err)
	}
	name := fmt.Sprintf("%s%d", chromeContainerPrefix, port)
	_ = exec.Command("docker", "rm", "-f", name).Run()

	if err := ensureImage(t); err != nil {
		t.Fatal(err)
	}

	args := []string{"run", "-d", "--rm", "--memory", "512m", "--cpus", "0.5", "--name", name}
	if runtime.GOOS == "linux" {
		args = append(args, "--network", "host", dockerImage, fmt.Sprintf("--remote-debugging-port=%d", port))
	} else {
		args = append(args, "-p", fmt.Sprintf("%d:9222", port), dockerImage)
	}
	if out, err := exec.Command("docker", args...).CombinedOutput(); err != nil {
		t.Fatalf("Failed to start Chrome container: %v\n%s", err, out)
	}
	t.Cleanup(func() {
		if out, err := exec.Command("docker", "rm", "-f", name).CombinedOutput(); err != nil &&
			!strings.Contains(string(out), "No such container") {
			t.Logf("Warning: failed to remove Chrome container: %v (%s)", err, out)
		}
	})

	if err := waitForChrome(port); err != nil {
		if logs, lerr := exec.Command("docker", "logs", "--tail", "50", name).CombinedOutput(); lerr == nil {
			t.Logf("Chrome container logs:\n%s", logs)
		}
		t.Fatal(err)
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), fmt.Sprintf("http://localhost:%d", port))
	ctx, ctxCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(t.Logf))
	ctx, timeoutCancel := context.WithTimeout(ctx, timeout)
	t.Cleanup(func() {
		timeoutCancel()
		ctxCancel()
		allocCancel()
	})
	return &browser{ctx: ctx, port: port}
}

func ensureImage(t *testing.T) error {
	if err := exec.Command("docker", "image", "inspect", dockerImage).Run(); err == nil {
		return nil
	}
	t.Log("Pulling chromedp/headless-shell Docker image...")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if out, err := exec.CommandContext(ctx, "docker", "pull", dockerImage).CombinedOutput(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("docker pull timed out after 60 seconds")
		}
		return fmt.Errorf("failed to pull Docker image: %v\n%s", err, out)
	}
	return nil
}

func waitForChrome(port int) error {
	client := &http.Client{Timeout: 2 * time.Second}
	url := fmt.Sprintf("http://localhost:%d/json/version", port)
	var lastErr error
	for i := 0; i < chromeStartAttempts; i++ {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		lastErr = err
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("Chrome failed to start within 60 seconds: %w", lastErr)
}

// getFreePort asks the kernel for a free open port that is ready to use.
func getFreePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// chromeURL rewrites an httptest URL so the Chrome container can reach it.
// On Linux the container shares the host network; elsewhere it goes through
// host.docker.internal.
func chromeURL(httptestURL string) string {
	host := "localhost"
	if runtime.GOOS != "linux" {
		host = "host.docker.internal"
	}
	url := strings.Replace(httptestURL, "127.0.0.1", host, 1)
	return strings.Replace(url, "[::1]", host, 1)
}
