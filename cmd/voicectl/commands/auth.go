package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"voice-dashboard/pkg/auth"
)

var errPasswordMismatch = errors.New("passwords don't match")

var (
	loginEmail    string
	loginPassword string

	signupEmail    string
	signupPassword string
	signupBusiness string

	resetEmail string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	Long: `Sign in to the dashboard. The password is read from --password,
the VOICECTL_PASSWORD environment variable or a prompt.

Examples:
  voicectl login --email ada@example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		stdin := bufio.NewReader(cmd.InOrStdin())
		email := loginEmail
		if email == "" {
			if email, err = prompt(stdin, cmd.ErrOrStderr(), "Email: "); err != nil {
				return err
			}
		}
		password := loginPassword
		if password == "" {
			password = os.Getenv("VOICECTL_PASSWORD")
		}
		if password == "" {
			if password, err = readPassword(cmd.InOrStdin(), stdin, cmd.ErrOrStderr()); err != nil {
				return err
			}
		}

		if _, ok := a.identity.Current(); ok {
			// Replace the resumed session rather than keep two alive.
			a.identity.SignOut(ctx)
		}
		ident, err := a.identity.SignIn(ctx, email, password)
		if err != nil {
			return err
		}
		if err := a.saveSession(ident.Email); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", ident.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the saved session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		// The local session is forgotten even when the revoke fails.
		signOutErr := a.identity.SignOut(cmd.Context())
		if err := a.cfg.ClearSession(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
		return signOutErr
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		ident, _ := a.identity.Current()
		if formatOutput != "table" {
			return printValue(cmd.OutOrStdout(), ident)
		}
		role := ident.Role
		if role == "" {
			role = "user"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %s)\n", ident.Email, ident.ID, role)
		return nil
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Long: `Create a dashboard account. Most projects mail a confirmation link
first; sign in with 'voicectl login' after following it. The password is
read from --password, the VOICECTL_PASSWORD environment variable or a prompt.

Examples:
  voicectl signup --email ada@example.com --business "Acme Audio"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		stdin := bufio.NewReader(cmd.InOrStdin())
		req := auth.SignUpRequest{Email: signupEmail, Password: signupPassword, BusinessName: signupBusiness}
		if req.BusinessName == "" {
			if req.BusinessName, err = prompt(stdin, cmd.ErrOrStderr(), "Business name: "); err != nil {
				return err
			}
		}
		if req.Email == "" {
			if req.Email, err = prompt(stdin, cmd.ErrOrStderr(), "Email: "); err != nil {
				return err
			}
		}
		if req.Password == "" {
			req.Password = os.Getenv("VOICECTL_PASSWORD")
		}
		if req.Password == "" {
			if req.Password, err = readPassword(cmd.InOrStdin(), stdin, cmd.ErrOrStderr()); err != nil {
				return err
			}
			confirm, err := readPassword(cmd.InOrStdin(), stdin, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if confirm != req.Password {
				return errPasswordMismatch
			}
		}

		ident, signedIn, err := a.identity.SignUp(ctx, req)
		if err != nil {
			return err
		}
		if !signedIn {
			fmt.Fprintf(cmd.OutOrStdout(), "Account created for %s. Check your email to verify it, then run 'voicectl login'.\n", ident.Email)
			return nil
		}
		if err := a.saveSession(ident.Email); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Account created, signed in as %s\n", ident.Email)
		return nil
	},
}

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password",
	Short: "Mail a password reset link",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		email := resetEmail
		if email == "" {
			if email, err = prompt(bufio.NewReader(cmd.InOrStdin()), cmd.ErrOrStderr(), "Email: "); err != nil {
				return err
			}
		}
		if err := a.identity.ResetPassword(cmd.Context(), email); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "If %s has an account, a reset link is on its way.\n", strings.TrimSpace(email))
		return nil
	},
}

func init() {
	signupCmd.Flags().StringVar(&signupEmail, "email", "", "account email")
	signupCmd.Flags().StringVar(&signupPassword, "password", "", "account password (prefer the prompt)")
	signupCmd.Flags().StringVar(&signupBusiness, "business", "", "business name")
	resetPasswordCmd.Flags().StringVar(&resetEmail, "email", "", "account email")

	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password (prefer the prompt)")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, signupCmd, resetPasswordCmd)
}

func prompt(r *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads without echo when in is a terminal.
func readPassword(in io.Reader, r *bufio.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	return prompt(r, out, "Password: ")
}
