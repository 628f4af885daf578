package secrets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/iac-studio/envforge/pkg/errors"
	"github.com/iac-studio/envforge/pkg/logger"
	"go.uber.org/zap"
)

// MinPassphraseLength is the shortest passphrase Encrypt accepts.
const MinPassphraseLength = 30

const cipherAlgo = "AES256"

// ErrPassphraseTooShort is returned before any process is started.
var ErrPassphraseTooShort = errors.Newf(errors.CodeFailedPrecondition,
	"passphrases must be at least %d characters", MinPassphraseLength)

// Command describes one gpg invocation. Passphrase is delivered on an
// inherited pipe (fd 3), never on the command line.
type Command struct {
	Name       string
	Args       []string
	Stdin      io.Reader
	Passphrase string
}

// Runner executes a Command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// GPG wraps the gpg binary for symmetric encryption.
type GPG struct {
	binary string
	runner Runner
}

// NewGPG returns a GPG that runs binary as a child process.
func NewGPG(binary string) *GPG {
	return &GPG{binary: binary, runner: ExecRunner{}}
}

// NewGPGWithRunner is NewGPG with an explicit Runner.
func NewGPGWithRunner(binary string, runner Runner) *GPG {
	return &GPG{binary: binary, runner: runner}
}

// checkPassphrase counts characters, not bytes.
func checkPassphrase(p string) error {
	if utf8.RuneCountInString(p) < MinPassphraseLength {
		return ErrPassphraseTooShort
	}
	return nil
}

func baseArgs() []string {
	return []string{"--batch", "--yes", "--quiet", "--pinentry-mode", "loopback", "--passphrase-fd", "3"}
}

// Encrypt returns the ASCII-armored ciphertext of cleartext.
func (g *GPG) Encrypt(ctx context.Context, passphrase, cleartext string) (string, error) {
	if err := checkPassphrase(passphrase); err != nil {
		return "", err
	}
	args := append(baseArgs(), "--cipher-algo", cipherAlgo, "--armor", "--symmetric")
	out, err := g.run(ctx, args, strings.NewReader(cleartext), passphrase)
	return string(out), err
}

// Decrypt returns the cleartext of an armored ciphertext.
func (g *GPG) Decrypt(ctx context.Context, passphrase, ciphertext string) (string, error) {
	args := append(baseArgs(), "--decrypt")
	out, err := g.run(ctx, args, strings.NewReader(ciphertext), passphrase)
	return string(out), err
}

// EncryptFile returns the armored ciphertext of the file at path.
func (g *GPG) EncryptFile(ctx context.Context, passphrase, path string) (string, error) {
	if err := checkPassphrase(passphrase); err != nil {
		return "", err
	}
	args := append(baseArgs(), "--cipher-algo", cipherAlgo, "--armor", "--output", "-", "--symmetric", path)
	out, err := g.run(ctx, args, nil, passphrase)
	return string(out), err
}

// DecryptFile writes the cleartext of cipherPath to outputPath.
func (g *GPG) DecryptFile(ctx context.Context, passphrase, cipherPath, outputPath string) error {
	args := append(baseArgs(), "--output", outputPath, "--decrypt", cipherPath)
	_, err := g.run(ctx, args, nil, passphrase)
	return err
}

func (g *GPG) run(ctx context.Context, args []string, stdin io.Reader, passphrase string) ([]byte, error) {
	logger.L().Debug("running gpg", zap.String("binary", g.binary), zap.Strings("args", args))
	return g.runner.Run(ctx, Command{Name: g.binary, Args: args, Stdin: stdin, Passphrase: passphrase})
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run starts cmd, feeds the passphrase through fd 3 and waits for it.
func (ExecRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("passphrase pipe: %w", err)
	}
	defer pr.Close()

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Stdin = cmd.Stdin
	c.ExtraFiles = []*os.File{pr}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("start %s: %w", cmd.Name, err)
	}
	_, werr := io.WriteString(pw, cmd.Passphrase+"\n")
	pw.Close()

	if err := c.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", cmd.Name, err, strings.TrimSpace(stderr.String()))
	}
	if werr != nil {
		return nil, fmt.Errorf("write passphrase: %w", werr)
	}
	return stdout.Bytes(), nil
}
