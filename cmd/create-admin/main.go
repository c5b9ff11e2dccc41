// create-admin creates an administrator account. Flags that are not given
// are prompted for; the password is read with echo disabled.
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
	var username, name string

	flagSet := pflag.NewFlagSet("create-admin", pflag.ContinueOnError)
	flagSet.StringVarP(&username, "username", "u", "", "admin username")
	flagSet.StringVarP(&name, "name", "n", "", "display name (defaults to the username)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	prompter := cli.NewPrompter()
	var err error
	if username == "" {
		if username, err = prompter.Line("Admin username: "); err != nil {
			return err
		}
		if name, err = prompter.Line("Admin name (optional): "); err != nil {
			return err
		}
	}
	password, err := prompter.Password("Admin password: ")
	if err != nil {
		return err
	}

	database, err := cli.OpenDatabase()
	if err != nil {
		return err
	}

	user, err := cli.CreateAdmin(context.Background(), repo.NewUserRepository(database), username, name, password)
	if errors.Is(err, cli.ErrUserExists) {
		fmt.Fprintln(os.Stderr, "User already exists.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("Admin created: %s\n", user.Username)
	return nil
}
