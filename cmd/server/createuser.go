package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	appauth "github.com/jw6ventures/calgrid/internal/auth"
	"github.com/jw6ventures/calgrid/internal/log"
)

// createUser handles the create-user subcommand.
func createUser(args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)
	name := fs.String("name", "", "Display name of the account")
	email := fs.String("email", "", "Email address used to sign in")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: calgrid create-user -name NAME -email EMAIL\n\n")
		fmt.Fprintf(os.Stderr, "Creates a password account. The password is read from the terminal,\n")
		fmt.Fprintf(os.Stderr, "or from the first line of stdin when it is not a terminal.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *email == "" {
		fs.Usage()
		return errors.New("name and email are required")
	}

	password, err := promptPassword(os.Stdin, os.Stderr)
	if err != nil {
		return err
	}

	ctx := context.Background()
	cfg, pool, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	user, err := appauth.NewService(cfg, st.Users, st.Tokens).CreateUser(ctx, *name, *email, password)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	log.Info("user created", "id", user.ID, "email", user.Email)
	return nil
}

// promptPassword reads a password twice without echo when in is a terminal,
// and a single line otherwise.
func promptPassword(in *os.File, out io.Writer) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return readPasswordLine(in)
	}

	read := func(prompt string) (string, error) {
		fmt.Fprint(out, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		return string(b), err
	}
	password, err := read("Enter password:   ")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	confirm, err := read("Confirm password: ")
	if err != nil {
		return "", fmt.Errorf("read password confirmation: %w", err)
	}
	if password != confirm {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

func readPasswordLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password cannot be empty")
	}
	return line, nil
}
