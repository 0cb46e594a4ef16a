package syntax

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// NodeChecker validates content with node --check. It needs a node binary on
// PATH and is used in addition to the in-process checker, not instead of it.
type NodeChecker struct {
	Timeout time.Duration
}

func NewNodeChecker(timeout time.Duration) *NodeChecker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &NodeChecker{Timeout: timeout}
}

// Available reports whether a usable node binary is on PATH.
func (n *NodeChecker) Available() bool {
	_, err := exec.LookPath("node")
	return err == nil
}

func (n *NodeChecker) Check(name, content string) error {
	dir, err := os.MkdirTemp("", "syntax-check-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	// Chunk files are ES modules; the .mjs name makes node parse them as such.
	tmp := filepath.Join(dir, strings.TrimSuffix(filepath.Base(name), ".js")+".mjs")
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.Timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "node", "--check", tmp).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("node --check failed for %s: %s", name, firstLine(msg))
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
