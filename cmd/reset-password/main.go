// reset-password replaces the password of an existing user.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"wainbox/internal/cli"
	"wainbox/internal/repo"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var username string

	flagSet := pflag.NewFlagSet("reset-password", pflag.ContinueOnError)
	flagSet.StringVarP(&username, "username", "u", "", "user whose password is reset")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	prompter := cli.NewPrompter()
	var err error
	if username == "" {
		if username, err = prompter.Line("Username to reset: "); err != nil {
			return err
		}
	}
	password, err := prompter.Password("New password: ")
	if err != nil {
		return err
	}

	database, err := cli.OpenDatabase()
	if err != nil {
		return err
	}

	if err := cli.ResetPassword(context.Background(), repo.NewUserRepository(database), username, password); err != nil {
		return err
	}

	fmt.Printf("Password reset OK for: %s\n", username)
	return nil
}
