package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/oauth2"

	"tasksync/internal/backend/googletasks"
	"tasksync/internal/backend/httpapi"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/session"
)

const (
	// OAuth callback timeout
	oauthCallbackTimeout = 5 * time.Minute

	// Token exchange timeout
	tokenExchangeTimeout = 30 * time.Second

	// Starting port for OAuth callback server
	oauthStartPort = 8085

	// Max port attempts
	oauthMaxPortAttempts = 5
)

func init() {
	Register(&LoginCmd{})
}

// LoginCmd signs in to the configured backend and stores the session.
type LoginCmd struct {
	email    string
	name     string
	register bool
}

func (c *LoginCmd) Name() string      { return "login" }
func (c *LoginCmd) Aliases() []string { return nil }
func (c *LoginCmd) Synopsis() string  { return "Sign in and store the session" }
func (c *LoginCmd) Usage() string {
	return "tasksync login [--email <email>] [--register [--name <name>]]"
}
func (c *LoginCmd) NeedsAuth() bool { return false }

func (c *LoginCmd) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.email, "email", "e", "", "account email (prompted when omitted)")
	fs.StringVar(&c.name, "name", "", "display name for --register")
	fs.BoolVar(&c.register, "register", false, "create the account first")
}

func (c *LoginCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		return usageError(errOut, "unexpected argument: %s", args[0])
	}
	if cfg.Backend == config.BackendGoogleTasks {
		return c.loginGoogle(ctx, cfg, env, out, errOut)
	}
	return c.loginHTTP(ctx, cfg, env, out, errOut)
}

// loginHTTP exchanges email and password for a bearer session and saves it to session.json.
func (c *LoginCmd) loginHTTP(ctx context.Context, cfg *config.Config, env *Env, out, errOut io.Writer) int {
	in, err := env.input(cfg)
	if err != nil {
		return fail(errOut, err)
	}
	defer in.Close()

	email := strings.TrimSpace(c.email)
	if email == "" {
		if email, err = in.ReadLine("Email: "); err != nil {
			return usageError(errOut, "email required")
		}
		email = strings.TrimSpace(email)
	}
	if email == "" {
		return usageError(errOut, "email required")
	}
	password, err := in.ReadPassword("Password: ")
	if err != nil || password == "" {
		return usageError(errOut, "password required")
	}

	client, err := httpapi.New(cfg.BaseURL, session.Session{},
		httpapi.WithTimeout(cfg.Timeout),
		httpapi.WithLogger(env.logger()),
	)
	if err != nil {
		return usageError(errOut, "%v", err)
	}

	var sess session.Session
	if c.register {
		sess, err = client.Register(ctx, email, c.name, password)
	} else {
		sess, err = client.Login(ctx, email, password)
	}
	if err != nil {
		return fail(errOut, err)
	}

	store := session.FileProvider{Path: cfg.SessionPath()}
	if err := store.Save(sess); err != nil {
		fmt.Fprintf(errOut, "error: failed to save session: %v\n", err)
		return exitcode.AuthError
	}

	if !cfg.Quiet {
		fmt.Fprintf(out, "logged in as %s\n", sess.Email)
	}
	return exitcode.Success
}

// loginGoogle runs the installed-app OAuth flow with PKCE and saves token.json.
func (c *LoginCmd) loginGoogle(ctx context.Context, cfg *config.Config, env *Env, out, errOut io.Writer) int {
	if !cfg.HasOAuthClient() {
		fmt.Fprintf(errOut, "error: %s not found in %s\n\n", config.OAuthClientFile, cfg.Dir)
		fmt.Fprint(errOut, oauthSetupHelp)
		fmt.Fprintf(errOut, "   %s\n\nThen run 'tasksync login' again.\n", cfg.OAuthClientPath())
		return exitcode.AuthError
	}

	oauthConfig, err := googletasks.OAuthConfig(cfg)
	if err != nil {
		fmt.Fprintf(errOut, "error: invalid %s: %v\n", config.OAuthClientFile, err)
		return exitcode.AuthError
	}

	if cfg.HasToken() && tokenUsable(ctx, oauthConfig, cfg.TokenPath()) {
		if !cfg.Quiet {
			fmt.Fprintln(out, "already logged in")
		}
		return exitcode.Success
	}

	port, listener, err := findAvailablePort()
	if err != nil {
		fmt.Fprintln(errOut, "error: could not bind to local port for OAuth callback")
		return exitcode.AuthError
	}
	defer listener.Close()

	oauthConfig.RedirectURL = fmt.Sprintf("http://localhost:%d/callback", port)
	verifier := oauth2.GenerateVerifier()
	state := oauth2.GenerateVerifier()
	authURL := oauthConfig.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	fmt.Fprintln(errOut, "Open this URL in your browser:")
	fmt.Fprintln(errOut, authURL)

	code, err := awaitCallback(ctx, listener, state)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.AuthError
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, tokenExchangeTimeout)
	defer cancel()
	token, err := oauthConfig.Exchange(exchangeCtx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		fmt.Fprintf(errOut, "error: failed to exchange code for token: %v\n", err)
		return exitcode.AuthError
	}

	if err := cfg.EnsureDir(); err != nil {
		fmt.Fprintf(errOut, "error: failed to create config directory: %v\n", err)
		return exitcode.AuthError
	}
	if err := googletasks.SaveToken(cfg.TokenPath(), token); err != nil {
		fmt.Fprintf(errOut, "error: failed to save token: %v\n", err)
		return exitcode.AuthError
	}

	ok(cfg, out)
	return exitcode.Success
}

// awaitCallback serves the redirect target until it receives an authorization code.
func awaitCallback(ctx context.Context, listener net.Listener, state string) (string, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "No code in callback", http.StatusBadRequest)
			select {
			case errCh <- errors.New("no code in callback"):
			default:
			}
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h1>Authentication successful</h1><p>You may close this window.</p></body></html>")
		select {
		case codeCh <- code:
		default:
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errCh <- err:
			default:
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	select {
	case code := <-codeCh:
		return code, nil
	case err := <-errCh:
		return "", err
	case <-time.After(oauthCallbackTimeout):
		return "", errors.New("oauth callback timed out")
	case <-ctx.Done():
		return "", errors.New("cancelled")
	}
}

// findAvailablePort tries to find an available port starting from oauthStartPort.
func findAvailablePort() (int, net.Listener, error) {
	for i := 0; i < oauthMaxPortAttempts; i++ {
		port := oauthStartPort + i
		listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
		if err == nil {
			return port, listener, nil
		}
	}
	return 0, nil, errors.New("no available port found")
}

// tokenUsable reports whether the stored token has a refresh token and can
// still produce an access token.
func tokenUsable(ctx context.Context, oauthConfig *oauth2.Config, path string) bool {
	token, err := googletasks.LoadToken(path)
	if err != nil || token.RefreshToken == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err = oauthConfig.TokenSource(ctx, token).Token()
	return err == nil
}

const oauthSetupHelp = `To use the Google Tasks backend you need OAuth credentials:

1. Go to https://console.cloud.google.com/apis/credentials
2. Create a project (or select an existing one)
3. Enable the Google Tasks API:
   https://console.cloud.google.com/apis/library/tasks.googleapis.com
4. Create OAuth 2.0 credentials:
   - Click 'Create Credentials' > 'OAuth client ID'
   - Choose 'Desktop app' as application type
   - Download the JSON file
5. Save it as:
`
