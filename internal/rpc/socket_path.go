package rpc

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/untoldecay/MnemoLog/internal/config"
)

// maxUnixSocketPath is the portable Unix socket path limit. macOS caps at
// 104 bytes including the terminator, Linux at 108.
const maxUnixSocketPath = 103

const tmpDir = "/tmp"

// SocketPath returns the daemon socket for a workspace: .mnemo/mn.sock
// when that fits the Unix limit, else a hashed directory under /tmp so
// deep workspaces still get a usable socket.
func SocketPath(workspace string) string {
	natural := filepath.Join(workspace, config.DirName, "mn.sock")
	if len(natural) <= maxUnixSocketPath {
		return natural
	}
	sum := sha256.Sum256([]byte(workspace))
	return filepath.Join(tmpDir, "mnemo-"+hex.EncodeToString(sum[:4]), "mn.sock")
}

// EnsureSocketDir creates the /tmp socket directory when the hashed path
// is in use. Workspace .mnemo directories are expected to exist already.
func EnsureSocketDir(socketPath string) error {
	dir := filepath.Dir(socketPath)
	if strings.HasPrefix(dir, filepath.Join(tmpDir, "mnemo-")) {
		return os.MkdirAll(dir, 0o700)
	}
	return nil
}

// CleanupSocket removes the socket file, and the hashed /tmp directory
// when that form is in use.
func CleanupSocket(socketPath string) error {
	_ = os.Remove(socketPath)
	dir := filepath.Dir(socketPath)
	if strings.HasPrefix(dir, filepath.Join(tmpDir, "mnemo-")) {
		return os.Remove(dir)
	}
	return nil
}
