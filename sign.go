package revise

import (
	"bytes"
	"errors"
	"os/exec"

	"golang.org/x/xerrors"
)

// ErrSignFailed is returned when the signing helper failed or didn't
// report a created signature
var ErrSignFailed = errors.New("could not sign commit")

// signBuffer pipes the commit body through the configured signing
// helper and returns the detached ascii-armored signature.
//
// The helper's status stream (--status-fd=2) must report SIG_CREATED,
// matching the check git itself performs
func (r *Repository) signBuffer(body []byte) ([]byte, error) {
	program := r.cfg.SigningProgram()
	key, ok := r.cfg.SigningKey()
	if !ok {
		key = r.defaultCommitter.SigningKey()
	}

	cmd := exec.Command(program, "--status-fd=2", "-bsau", key)
	cmd.Dir = r.Workdir
	cmd.Stdin = bytes.NewReader(body)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return nil, xerrors.Errorf("%s failed: %s: %w", program, stderr.String(), ErrSignFailed)
	}
	if !bytes.Contains(stderr.Bytes(), []byte("[GNUPG:] SIG_CREATED")) {
		return nil, xerrors.Errorf("%s reported no SIG_CREATED: %s: %w", program, stderr.String(), ErrSignFailed)
	}
	return bytes.TrimRight(stdout.Bytes(), "\n"), nil
}
