package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// outputTailLimit bounds how much command output makes it into the summary.
const outputTailLimit = 200

func commandRun(command string) runFunc {
	return func(ctx context.Context) (string, error) {
		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
		var buf bytes.Buffer
		cmd.Stdout = &buf
		cmd.Stderr = &buf

		err := cmd.Run()
		out := strings.TrimSpace(buf.String())
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return "", fmt.Errorf("command aborted: %w", cerr)
			}
			if out != "" {
				return "", fmt.Errorf("%w: %s", err, tail(out, outputTailLimit))
			}
			return "", err
		}
		if out == "" {
			return "Done.", nil
		}
		return tail(out, outputTailLimit), nil
	}
}

// tail returns the last n bytes of s, cut at a line boundary when possible.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	t := s[len(s)-n:]
	if i := strings.IndexByte(t, '\n'); i >= 0 && i+1 < len(t) {
		t = t[i+1:]
	}
	return t
}
