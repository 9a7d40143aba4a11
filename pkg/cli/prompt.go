package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrMissingCredentials is returned when login or password is empty.
var ErrMissingCredentials = errors.New("missing login or password")

// promptCredentials asks for the login when user is empty and for the
// password. The password is not echoed when in is a terminal.
func promptCredentials(in io.Reader, prompt io.Writer, user string) (string, string, error) {
	reader := bufio.NewReader(in)

	if user == "" {
		fmt.Fprint(prompt, "Login: ")

		line, err := readLine(reader)
		if err != nil {
			return "", "", fmt.Errorf("failed to read login: %w", err)
		}

		user = line
	}

	fmt.Fprint(prompt, "Password: ")

	var password string

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)

		if err != nil {
			return "", "", fmt.Errorf("failed to read password: %w", err)
		}

		password = string(b)
	} else {
		line, err := readLine(reader)
		if err != nil {
			return "", "", fmt.Errorf("failed to read password: %w", err)
		}

		password = line
	}

	if user == "" || password == "" {
		return "", "", ErrMissingCredentials
	}

	return user, password, nil
}

// readLine returns the next line of r without line terminator. A last line
// without terminator is accepted.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}
