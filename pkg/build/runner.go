package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/collab/pkg/config"
	"github.com/DeBrosOfficial/collab/pkg/logging"
)

// ExecRunner runs each stage as a child process in WorkDir and logs its
// output line by line.
type ExecRunner struct {
	WorkDir string
	Logger  *logging.ColoredLogger
}

func (r *ExecRunner) Run(ctx context.Context, stage config.BuildStage) error {
	if len(stage.Command) == 0 {
		return fmt.Errorf("stage %s: empty command", stage.Name)
	}
	logger := r.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	cmd := exec.CommandContext(ctx, stage.Command[0], stage.Command[1:]...)
	cmd.Dir = r.WorkDir
	cmd.Env = os.Environ()
	for key, value := range stage.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	out := &lineLogger{logger: logger, stage: stage.Name}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		out.flush()
		return fmt.Errorf("%s: %w", stage.Command[0], err)
	}
	out.flush()
	return nil
}

// lineLogger turns process output into debug log lines.
type lineLogger struct {
	logger *logging.ColoredLogger
	stage  string

	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Write(p)
	for {
		i := bytes.IndexByte(l.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(l.buf.Next(i+1), "\r\n"))
		if line != "" {
			l.logger.ComponentDebug(logging.ComponentBuild, line, zap.String("stage", l.stage))
		}
	}
	return len(p), nil
}

func (l *lineLogger) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf.Len() > 0 {
		l.logger.ComponentDebug(logging.ComponentBuild, l.buf.String(), zap.String("stage", l.stage))
		l.buf.Reset()
	}
}
