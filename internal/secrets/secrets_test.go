package secrets

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	apperrors "github.com/iac-studio/envforge/pkg/errors"
	"github.com/iac-studio/envforge/pkg/logger"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	_, _ = logger.Init("error", "json")
	os.Exit(m.Run())
}

type recordingRunner struct {
	calls []Command
	stdin []string
	out   []byte
	err   error
}

func (r *recordingRunner) Run(_ context.Context, cmd Command) ([]byte, error) {
	r.calls = append(r.calls, cmd)
	if cmd.Stdin != nil {
		b, _ := io.ReadAll(cmd.Stdin)
		r.stdin = append(r.stdin, string(b))
	}
	return r.out, r.err
}

func TestGenerateLengthAndAlphabet(t *testing.T) {
	s, err := NewGenerator().Generate()
	require.NoError(t, err)
	require.Len(t, s, EncodedLen(SecretBytes))
	require.Equal(t, 67, len(s))
	require.NotContains(t, s, "=")
	require.NotContains(t, s, "+")
	require.NotContains(t, s, "/")

	raw, err := base64.RawURLEncoding.DecodeString(s)
	require.NoError(t, err)
	require.Len(t, raw, SecretBytes)
}

func TestGenerateIsDeterministicForSource(t *testing.T) {
	src := bytes.Repeat([]byte{0xff}, SecretBytes)
	s, err := NewGeneratorFrom(bytes.NewReader(src), SecretBytes).Generate()
	require.NoError(t, err)
	require.Equal(t, base64.RawURLEncoding.EncodeToString(src), s)
}

func TestGenerateDistinct(t *testing.T) {
	g := NewGenerator()
	a, err := g.Generate()
	require.NoError(t, err)
	b, err := g.Generate()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestGenerateShortSource(t *testing.T) {
	_, err := NewGeneratorFrom(bytes.NewReader([]byte{1, 2, 3}), SecretBytes).Generate()
	require.Error(t, err)
}

func TestEncryptRejectsShortPassphrase(t *testing.T) {
	r := &recordingRunner{}
	g := NewGPGWithRunner("gpg", r)

	_, err := g.Encrypt(context.Background(), strings.Repeat("p", MinPassphraseLength-1), "hello")
	require.ErrorIs(t, err, ErrPassphraseTooShort)
	require.True(t, apperrors.IsCode(err, apperrors.CodeFailedPrecondition))

	_, err = g.EncryptFile(context.Background(), "short", "/tmp/x")
	require.ErrorIs(t, err, ErrPassphraseTooShort)

	require.Empty(t, r.calls)
}

func TestEncryptCountsCharactersNotBytes(t *testing.T) {
	r := &recordingRunner{out: []byte("armored")}
	g := NewGPGWithRunner("gpg", r)

	short := strings.Repeat("é", MinPassphraseLength/2)
	require.Len(t, short, MinPassphraseLength)
	_, err := g.Encrypt(context.Background(), short, "hello")
	require.ErrorIs(t, err, ErrPassphraseTooShort)
	_, err = g.EncryptFile(context.Background(), short, "/tmp/x")
	require.ErrorIs(t, err, ErrPassphraseTooShort)
	require.Empty(t, r.calls)

	_, err = g.Encrypt(context.Background(), strings.Repeat("é", MinPassphraseLength), "hello")
	require.NoError(t, err)
	require.Len(t, r.calls, 1)
}

func TestEncryptAcceptsMinimumPassphrase(t *testing.T) {
	r := &recordingRunner{out: []byte("-----BEGIN PGP MESSAGE-----")}
	g := NewGPGWithRunner("/usr/bin/gpg", r)
	pass := strings.Repeat("p", MinPassphraseLength)

	out, err := g.Encrypt(context.Background(), pass, "hello")
	require.NoError(t, err)
	require.Equal(t, "-----BEGIN PGP MESSAGE-----", out)

	require.Len(t, r.calls, 1)
	call := r.calls[0]
	require.Equal(t, "/usr/bin/gpg", call.Name)
	require.Equal(t, pass, call.Passphrase)
	require.Contains(t, call.Args, "--symmetric")
	require.Contains(t, call.Args, "--armor")
	require.Contains(t, call.Args, "AES256")
	require.NotContains(t, call.Args, pass)
	require.Equal(t, []string{"hello"}, r.stdin)
}

func TestDecryptDoesNotCheckLength(t *testing.T) {
	r := &recordingRunner{out: []byte("hello")}
	g := NewGPGWithRunner("gpg", r)

	out, err := g.Decrypt(context.Background(), "short", "armored")
	require.NoError(t, err)
	require.Equal(t, "hello", out)
	require.Contains(t, r.calls[0].Args, "--decrypt")
}

func TestDecryptFileArgs(t *testing.T) {
	r := &recordingRunner{}
	g := NewGPGWithRunner("gpg", r)

	require.NoError(t, g.DecryptFile(context.Background(), "pw", "in.asc", "out.txt"))
	args := r.calls[0].Args
	require.Equal(t, "in.asc", args[len(args)-1])
	require.Contains(t, args, "out.txt")
}

func TestRunnerErrorPropagates(t *testing.T) {
	boom := errors.New("gpg: decryption failed: Bad session key")
	g := NewGPGWithRunner("gpg", &recordingRunner{err: boom})

	_, err := g.Decrypt(context.Background(), "pw", "x")
	require.ErrorIs(t, err, boom)
}
