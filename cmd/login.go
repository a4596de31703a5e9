package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pkichain/pkichain/session"
)

type loginConfig struct {
	Name     string
	Email    string
	Password string
	TOTPSeed string
}

var (
	loginCfg        loginConfig
	loginKeyMapping = map[string]string{
		"email":     "email",
		"password":  "password",
		"totp-seed": "totp_seed",
	}
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session",
	PreRun: func(cmd *cobra.Command, args []string) {
		bindFlags(cmd, loginKeyMapping)
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		in := bufio.NewReader(os.Stdin)
		if loginCfg.Email == "" {
			loginCfg.Email = prompt(in, "Email: ")
		}
		if loginCfg.Password == "" {
			loginCfg.Password = promptSecret(in, int(os.Stdin.Fd()), "Password: ")
		}

		mgr := newSessionManager()
		user, err := mgr.Login(ctx, newClient(mgr), session.Credentials{
			Email:    loginCfg.Email,
			Password: loginCfg.Password,
			TOTPSeed: loginCfg.TOTPSeed,
		})
		if err != nil {
			slog.Error("login failed", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("logged in", slog.String("email", user.Email))
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and store the session",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		in := bufio.NewReader(os.Stdin)
		if loginCfg.Name == "" {
			loginCfg.Name = prompt(in, "Name: ")
		}
		if loginCfg.Email == "" {
			loginCfg.Email = prompt(in, "Email: ")
		}
		if loginCfg.Password == "" {
			loginCfg.Password = promptSecret(in, int(os.Stdin.Fd()), "Password: ")
		}

		mgr := newSessionManager()
		user, err := mgr.Register(ctx, newClient(mgr), loginCfg.Name, loginCfg.Email, loginCfg.Password)
		if err != nil {
			slog.Error("registration failed", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("registered", slog.String("email", user.Email))
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Run: func(cmd *cobra.Command, args []string) {
		if err := newSessionManager().Logout(); err != nil {
			slog.Error("logout failed", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("logged out")
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	Run: func(cmd *cobra.Command, args []string) {
		mgr := newSessionManager()
		user, err := mgr.User()
		if err != nil {
			slog.Error("no usable session", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("%s <%s>\n", user.Name, user.Email)
		if exp, ok := mgr.ExpiresAt(); ok {
			fmt.Printf("session expires %s\n", exp.Local().Format("2006-01-02 15:04"))
		}
	},
}

func prompt(in *bufio.Reader, label string) string {
	fmt.Fprint(os.Stderr, label)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}

// promptSecret reads without echo when fd is a terminal and falls back to a
// plain line read for piped input.
func promptSecret(in *bufio.Reader, fd int, label string) string {
	if !term.IsTerminal(fd) {
		return prompt(in, label)
	}
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		slog.Error("failed to read password", slog.Any("error", err))
		os.Exit(1)
	}
	return strings.TrimSpace(string(b))
}

func init() {
	loginCmd.Flags().StringVar(&loginCfg.Email, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginCfg.Password, "password", "", "Account password")
	loginCmd.Flags().StringVar(&loginCfg.TOTPSeed, "totp-seed", "", "TOTP seed used to generate the second factor")

	registerCmd.Flags().StringVar(&loginCfg.Name, "name", "", "Full name")
	registerCmd.Flags().StringVar(&loginCfg.Email, "email", "", "Account email")
	registerCmd.Flags().StringVar(&loginCfg.Password, "password", "", "Account password")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd)
}
