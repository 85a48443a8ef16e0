package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/taskboard/internal/api"
	"github.com/nhle/taskboard/internal/model"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the task service",
	Long: `Sign in with email and password. Missing values are prompted for.
The issued credential is kept in the system keyring for later commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if err := promptCredentials(&email, nil, &password); err != nil {
			return err
		}
		if err := model.ValidateCredentials(email, password); err != nil {
			return err
		}

		e, err := newEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, cancel := commandContext(cmd.Context())
		defer cancel()
		res, err := e.client.Login(ctx, email, password)
		if err != nil {
			return errors.New(api.Message(err))
		}
		fmt.Printf("✓ Signed in as %s\n", displayName(res, email))
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")
		password, _ := cmd.Flags().GetString("password")
		if err := promptCredentials(&email, &name, &password); err != nil {
			return err
		}
		if err := model.ValidateRegistration(email, name, password); err != nil {
			return err
		}

		e, err := newEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, cancel := commandContext(cmd.Context())
		defer cancel()
		res, err := e.client.Register(ctx, email, name, password)
		if err != nil {
			return errors.New(api.Message(err))
		}
		fmt.Printf("✓ Account created for %s\n", displayName(res, email))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the cached credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, cancel := commandContext(cmd.Context())
		defer cancel()
		if err := e.client.Logout(ctx); err != nil && !api.IsAuthRequired(err) {
			fmt.Printf("Signed out locally (%s)\n", api.Message(err))
		} else {
			fmt.Println("✓ Signed out")
		}

		cache, err := e.openCache()
		if err != nil {
			return err
		}
		if cache != nil {
			if err := cache.Clear(ctx); err != nil {
				return fmt.Errorf("clearing cache: %w", err)
			}
		}
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, cancel := commandContext(cmd.Context())
		defer cancel()
		u, err := e.currentUser(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s <%s>\n", u.DisplayName(), u.Email)
		fmt.Printf("  ID: %s\n", u.ID)
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Change your display name or email",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		if name == "" && email == "" {
			return errors.New("nothing to update; pass --name or --email")
		}

		e, err := newEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, cancel := commandContext(cmd.Context())
		defer cancel()
		u, err := e.client.UpdateProfile(ctx, model.ProfileUpdate{Name: name, Email: email})
		if err != nil {
			return errors.New(api.Message(err))
		}
		fmt.Printf("✓ Profile updated: %s <%s>\n", u.DisplayName(), u.Email)
		return nil
	},
}

func displayName(res *api.AuthResult, fallback string) string {
	if res.User == nil {
		return fallback
	}
	return res.User.DisplayName()
}

// promptCredentials asks for whichever of the values are empty. name is
// nil for sign-in.
func promptCredentials(email, name, password *string) error {
	var fields []huh.Field
	if *email == "" {
		fields = append(fields, huh.NewInput().Title("Email").Value(email))
	}
	if name != nil && *name == "" {
		fields = append(fields, huh.NewInput().Title("Name").Value(name))
	}
	if *password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(password))
	}
	if len(fields) == 0 {
		return nil
	}
	return huh.NewForm(huh.NewGroup(fields...)).Run()
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().String("email", "", "Account email")
		c.Flags().String("password", "", "Account password (prompted when omitted)")
	}
	registerCmd.Flags().String("name", "", "Display name")

	profileCmd.Flags().String("name", "", "New display name")
	profileCmd.Flags().String("email", "", "New email")
}
