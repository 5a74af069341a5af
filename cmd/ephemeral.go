package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/pflag"

	"github.com/giantswarm/mcporter/internal/config"
	"github.com/giantswarm/mcporter/internal/logging"
	"github.com/giantswarm/mcporter/internal/registry"
	"github.com/giantswarm/mcporter/internal/runtime"
)

// ephemeralFlags describe a one-off server on the command line.
type ephemeralFlags struct {
	httpURL     string
	sseURL      string
	stdio       string
	stdioArgs   []string
	env         []string
	cwd         string
	name        string
	description string
	persist     string
}

func (f *ephemeralFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.httpURL, "http-url", "", "Use an ad-hoc server reachable over streamable HTTP")
	fs.StringVar(&f.sseURL, "sse-url", "", "Use an ad-hoc server reachable over SSE")
	fs.StringVar(&f.stdio, "stdio", "", "Use an ad-hoc stdio server started with this command")
	fs.StringArrayVar(&f.stdioArgs, "stdio-arg", nil, "Extra argument for --stdio (repeatable)")
	fs.StringArrayVar(&f.env, "env", nil, "KEY=VALUE environment for --stdio (repeatable)")
	fs.StringVar(&f.cwd, "cwd", "", "Working directory for --stdio")
	fs.StringVar(&f.name, "name", "", "Name of the ad-hoc server (inferred when omitted)")
	fs.StringVar(&f.description, "description", "", "Description of the ad-hoc server")
	fs.StringVar(&f.persist, "persist", "", "Save the ad-hoc server into this JSON config file")
}

func (f *ephemeralFlags) requested() bool {
	return f.httpURL != "" || f.sseURL != "" || f.stdio != ""
}

func (f *ephemeralFlags) spec() (registry.EphemeralSpec, error) {
	if f.httpURL != "" && f.sseURL != "" {
		return registry.EphemeralSpec{}, usageErrorf("--http-url and --sse-url are mutually exclusive")
	}
	env := map[string]string{}
	for _, kv := range f.env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return registry.EphemeralSpec{}, usageErrorf("--env expects KEY=VALUE, got %q", kv)
		}
		env[k] = v
	}
	if len(env) == 0 {
		env = nil
	}

	spec := registry.EphemeralSpec{
		HTTPURL:      f.httpURL,
		StdioCommand: f.stdio,
		StdioArgs:    f.stdioArgs,
		Env:          env,
		Cwd:          f.cwd,
		Name:         f.name,
		Description:  f.description,
		PersistPath:  f.persist,
	}
	if f.sseURL != "" {
		spec.HTTPURL = f.sseURL
		spec.SSE = true
	}
	return spec, nil
}

// apply registers the ad-hoc server, persisting it when asked, and returns
// its name. It returns "" when no ad-hoc server was requested.
func (f *ephemeralFlags) apply(rt *runtime.Runtime, logger *logging.Logger) (string, error) {
	spec, err := f.spec()
	if err != nil || spec.IsZero() {
		return "", err
	}
	return registerEphemeral(rt, spec, logger)
}

func registerEphemeral(rt *runtime.Runtime, spec registry.EphemeralSpec, logger *logging.Logger) (string, error) {
	res, err := registry.ResolveEphemeralServer(spec)
	if err != nil {
		return "", &UsageError{Err: err}
	}
	def := res.Definition
	if err := rt.RegisterDefinition(def, true); err != nil {
		return "", err
	}
	if res.NameInferred {
		logger.Info("Using ad-hoc server '%s' (pass --name to choose another name)", def.Name)
	}
	if res.PersistPath != "" {
		if err := config.PersistServer(res.PersistPath, def); err != nil {
			return "", err
		}
		logger.Success("Saved '%s' to %s", def.Name, res.PersistPath)
	}
	return def.Name, nil
}

// resolveServer turns a server argument into a registered name. URLs reuse
// a configured definition when one has the same URL and are otherwise
// registered as ad-hoc HTTP servers.
func resolveServer(rt *runtime.Runtime, ref string, logger *logging.Logger) (string, error) {
	if !isHTTPURL(ref) {
		if _, err := rt.Definition(ref); err != nil {
			return "", err
		}
		return ref, nil
	}
	if name, ok := rt.ResolveByURL(ref); ok {
		return name, nil
	}
	return registerEphemeral(rt, registry.EphemeralSpec{HTTPURL: ref}, logger)
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// targetServer resolves the server of commands taking [server] plus the
// ad-hoc flags. With both, the positional argument names the ad-hoc server.
func targetServer(rt *runtime.Runtime, eph *ephemeralFlags, args []string, logger *logging.Logger) (string, error) {
	if eph.requested() {
		if len(args) > 0 {
			// Name the ad-hoc server after the positional argument
			if isHTTPURL(args[0]) {
				return "", usageErrorf("pass either a server URL or --http-url/--sse-url/--stdio, not both")
			}
			if eph.name != "" && eph.name != args[0] {
				return "", usageErrorf("server name '%s' conflicts with --name '%s'", args[0], eph.name)
			}
			named := *eph
			named.name = args[0]
			return named.apply(rt, logger)
		}
		return eph.apply(rt, logger)
	}
	if len(args) == 0 {
		return "", nil
	}
	return resolveServer(rt, args[0], logger)
}

func fmtServerKind(def registry.ServerDefinition) string {
	if u, ok := registry.CommandURL(def.Command); ok {
		return fmt.Sprintf("%s %s", def.Command.Kind(), u)
	}
	if c, ok := def.Command.(registry.StdioCommand); ok {
		return strings.TrimSpace("stdio " + strings.Join(append([]string{c.Command}, c.Args...), " "))
	}
	return ""
}
