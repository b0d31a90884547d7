package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"linkrelay/internal/services"
)

const remoteCheckTimeout = 10 * time.Second

// FolderProber confirms the storage account can see a folder.
type FolderProber interface {
	Probe(ctx context.Context, folderPath string) error
}

// TrackerPinger confirms the tracker accepts the configured API key.
type TrackerPinger interface {
	Ping(ctx context.Context) error
}

// CheckNextcloud verifies the WebDAV credentials and that the catalog folder exists.
func CheckNextcloud(ctx context.Context, prober FolderProber, catalog string) Result {
	const name = "Nextcloud"
	if prober == nil {
		return Result{Name: name, Detail: "not configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, remoteCheckTimeout)
	defer cancel()

	if err := prober.Probe(checkCtx, catalog); err != nil {
		switch services.StatusCode(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			return Result{Name: name, Detail: "auth failed (check username and app password)"}
		case http.StatusNotFound:
			return Result{Name: name, Detail: fmt.Sprintf("catalog folder %s does not exist", catalog)}
		}
		return Result{Name: name, Detail: summarizeRemoteError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("catalog %s reachable", catalog)}
}

// CheckTracker verifies tracker connectivity and authentication.
func CheckTracker(ctx context.Context, pinger TrackerPinger) Result {
	const name = "Tracker"
	if pinger == nil {
		return Result{Name: name, Detail: "not configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, remoteCheckTimeout)
	defer cancel()

	if err := pinger.Ping(checkCtx); err != nil {
		switch services.StatusCode(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			return Result{Name: name, Detail: "auth failed (invalid api key)"}
		}
		return Result{Name: name, Detail: summarizeRemoteError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeRemoteError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (service unreachable)"
	}
	if code := services.StatusCode(err); code != 0 {
		return fmt.Sprintf("unexpected status %d", code)
	}
	return strings.TrimSpace(err.Error())
}
