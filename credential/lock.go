package credential

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// staleLockTTL bounds how long a lock file may be held before a waiter
// forcibly steals it. A process that died holding the lock (crash, OOM
// kill) would otherwise wedge every other process's credential resolution
// forever.
const staleLockTTL = 30 * time.Second

// lockRetryInterval and lockRetryAttempts bound how long Resolve waits to
// acquire the lock before giving up; unbounded refresh calls are not
// allowed.
const (
	lockRetryInterval = 100 * time.Millisecond
	lockRetryAttempts = 100 // ~10s
)

// fileLock is an advisory, cross-process exclusive lock implemented with
// flock(2) on a sidecar ".lock" file via golang.org/x/sys/unix.
type fileLock struct {
	path string
	file *os.File
	fd   int
}

func newFileLock(credPath string) *fileLock {
	return &fileLock{path: credPath + ".lock"}
}

// Acquire blocks (with bounded retries) until the lock is held, stealing a
// lock file whose mtime is older than staleLockTTL.
func (l *fileLock) Acquire() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("credential: open lock file: %w", err)
	}
	l.file = file
	l.fd = int(file.Fd())

	for attempt := 0; attempt < lockRetryAttempts; attempt++ {
		err := unix.Flock(l.fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if l.isStale() {
			// Steal: close and reopen truncated, then retry the flock once
			// more on the fresh descriptor.
			l.file.Close()
			if recreated, rerr := os.OpenFile(l.path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o600); rerr == nil {
				l.file = recreated
				l.fd = int(recreated.Fd())
			}
			continue
		}
		time.Sleep(lockRetryInterval)
	}
	l.file.Close()
	return fmt.Errorf("credential: timed out acquiring lock on %s", l.path)
}

func (l *fileLock) isStale() bool {
	info, err := os.Stat(l.path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > staleLockTTL
}

// touch refreshes the lock file's mtime so a long-running refresh is not
// mistaken for a stale, crashed holder by another waiter.
func (l *fileLock) touch() {
	now := time.Now()
	_ = os.Chtimes(l.path, now, now)
}

// Release drops the flock and closes the descriptor. Safe to call once.
func (l *fileLock) Release() {
	if l.file == nil {
		return
	}
	_ = unix.Flock(l.fd, unix.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
	l.fd = 0
}

// RefreshOAuth performs a contended OAuth refresh: acquire the advisory
// lock, re-read the file (a peer may have already refreshed while
// we were waiting), and only call the provider's refresh endpoint if the
// re-read token is still expired. The refreshed credential is persisted and
// the lock released before returning.
//
// A caller whose refresh HTTP call is interrupted by a "compromised lock"
// signal (e.g. the process is being shut down) should simply let this
// function return its error; no partial credential is ever written because
// Save only runs after refresh succeeds.
func RefreshOAuth(s *Store, provider string, refresh RefreshFunc) (Credential, error) {
	lock := newFileLock(s.Path)
	if err := lock.Acquire(); err != nil {
		return Credential{}, err
	}
	defer lock.Release()
	lock.touch()

	creds, err := s.Load()
	if err != nil {
		return Credential{}, err
	}

	cred, ok := creds[provider]
	if !ok {
		return Credential{}, fmt.Errorf("credential: no stored oauth credential for %s", provider)
	}

	// Peer-refresh detection: another process may have refreshed and
	// written while we waited for the lock.
	if oauthValid(cred) {
		s.log().Debug("oauth token already refreshed by peer", zap.String("provider", provider))
		return cred, nil
	}

	refreshed, err := refresh(provider, cred)
	if err != nil {
		return Credential{}, fmt.Errorf("credential: refresh %s: %w", provider, err)
	}
	refreshed.Type = TypeOAuth
	if refreshed.Expires == 0 && refreshed.Access != "" {
		if exp, ok := expiryFromJWT(refreshed.Access); ok {
			refreshed.Expires = exp.UnixMilli()
		}
	}

	creds[provider] = refreshed
	if err := s.Save(creds); err != nil {
		return Credential{}, err
	}
	s.log().Info("oauth token refreshed", zap.String("provider", provider))
	return refreshed, nil
}
