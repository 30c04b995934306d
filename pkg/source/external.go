package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/vpnda/bankpoll/pkg/config"
	"github.com/vpnda/bankpoll/pkg/models"
	"github.com/vpnda/bankpoll/pkg/utils"
)

// Command is the positional verb understood by the external process.
type Command string

const (
	CommandTest             Command = "test"
	CommandVersion          Command = "version"
	CommandUpdate           Command = "update"
	CommandListAccounts     Command = "list-accounts"
	CommandListTransactions Command = "list-transactions"
)

// exit code of the backend's argument parser on bad flags
const malformedOptionsExitCode = 2

// Environment variables exported to the external process when configured.
const (
	EnvModulesDir  = "BANKPOLL_MODULES_DIR"
	EnvDataDir     = "BANKPOLL_DATA_DIR"
	EnvSourcesList = "BANKPOLL_SOURCES_LIST"
)

// codes that suggest the backend itself is broken rather than the access
var brokenInstallCodes = []models.ErrorCode{
	models.ErrSourceNotInstalled,
	models.ErrInternalError,
	models.ErrGenericException,
	models.ErrUnknownModule,
}

type InvokeOptions struct {
	Debug       bool
	ForceUpdate bool
}

// ExternalSource talks to the fetch backend by spawning one process per call.
type ExternalSource struct {
	executable string
	args       []string
	extraEnv   map[string]string
	workDir    string
	timeout    time.Duration
	debug      bool
	version    *versionCache
}

// NewExternalSource creates a gateway from the source configuration.
func NewExternalSource(cfg config.SourceConfig) *ExternalSource {
	env := map[string]string{}
	if cfg.ModulesDir != "" {
		env[EnvModulesDir] = cfg.ModulesDir
	}
	if cfg.DataDir != "" {
		env[EnvDataDir] = cfg.DataDir
	}
	if cfg.SourcesList != "" {
		env[EnvSourcesList] = cfg.SourcesList
	}

	return &ExternalSource{
		executable: cfg.Executable,
		args:       slices.Clone(cfg.Args),
		extraEnv:   env,
		workDir:    cfg.WorkDir,
		timeout:    cfg.GetTimeout(),
		debug:      cfg.Debug,
		version:    newVersionCache(cfg.MinVersion),
	}
}

func (s *ExternalSource) Name() string {
	return "external"
}

// Invoke runs one command and returns the "values" member of the answer.
func (s *ExternalSource) Invoke(ctx context.Context, cmd Command, access *models.Access, opts InvokeOptions) (json.RawMessage, error) {
	args, err := buildArgs(cmd, access, opts)
	if err != nil {
		log.Error().Err(err).Str("command", string(cmd)).Msg("Refusing to call source")
		return nil, err
	}

	logger := log.With().Str("command", string(cmd)).Logger()
	if access != nil {
		logger = logger.With().
			Str("access", access.ID).
			Str("module", access.ModuleID).
			Str("login", utils.Obfuscate(access.Login)).
			Logger()
	}
	logger.Info().Msg("Calling source")

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	proc := exec.CommandContext(ctx, s.executable, append(slices.Clone(s.args), args...)...)
	proc.Env = s.environ()
	proc.Dir = s.workDir
	proc.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	runErr := proc.Run()
	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(runErr, &exitErr):
			exitCode = exitErr.ExitCode()
		case errors.Is(runErr, exec.ErrWaitDelay):
			// exited fine but left its pipes open
		default:
			logger.Error().Err(runErr).Msg("Could not start source process")
			return nil, &Error{
				Code:    models.ErrSourceNotInstalled,
				Message: fmt.Sprintf("could not start source: %v", runErr),
			}
		}
	}
	logger.Info().Int("exit_code", exitCode).Msg("Source process exited")

	if errText := strings.TrimSpace(stderr.String()); errText != "" {
		logger.Warn().Str("stderr", errText).Msg("Source wrote to stderr")
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		logger.Error().Dur("timeout", s.timeout).Msg("Source process timed out")
		return nil, &CrashError{ExitCode: exitCode, Stderr: stderr.String(), TimedOut: true}
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("calling source %s: %w", cmd, ctx.Err())
	}

	return parseResponse(stdout.Bytes(), exitCode, stderr.String())
}

// parseResponse looks at stdout first since structured errors come with a
// non-zero exit code too. Only an object carrying an "error_code" member is
// an error; any other valid JSON document without "values" yields nil.
func parseResponse(stdout []byte, exitCode int, stderr string) (json.RawMessage, error) {
	var doc any
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &doc); err != nil {
		if exitCode == malformedOptionsExitCode {
			return nil, NewError(models.ErrInternalError, "options malformed")
		}
		if exitCode != 0 {
			return nil, &CrashError{ExitCode: exitCode, Stderr: stderr}
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSONResponse, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &fields); err != nil {
		log.Debug().Int("exit_code", exitCode).Msg("Source answered with a non-object document")
		return nil, nil
	}

	rawCode, hasCode := fields["error_code"]
	if !hasCode {
		return fields["values"], nil
	}

	code := stringField(rawCode)
	if code == "" {
		if exitCode != 0 {
			return nil, &CrashError{ExitCode: exitCode, Stderr: stderr}
		}
		return nil, NewError(models.ErrInternalError, fmt.Sprintf("invalid error code from source: %s", rawCode))
	}

	message := stringField(fields["error_message"])
	if message == "" {
		message = code
	}
	log.Info().Str("code", code).Msg("Source returned an error code")
	return nil, &Error{
		Code:         models.ErrorCode(code),
		Message:      message,
		ShortMessage: stringField(fields["error_short"]),
	}
}

// stringField decodes a JSON string member, "" for anything else.
func stringField(raw json.RawMessage) string {
	var v string
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return ""
	}
	return v
}

func buildArgs(cmd Command, access *models.Access, opts InvokeOptions) ([]string, error) {
	args := []string{string(cmd)}
	if opts.Debug {
		args = append(args, "--debug")
	}
	if opts.ForceUpdate {
		args = append(args, "--update")
	}

	if cmd != CommandListAccounts && cmd != CommandListTransactions {
		return args, nil
	}

	if access == nil {
		return nil, NewError(models.ErrInvalidParameters, "an access is required for "+string(cmd))
	}
	if access.Password == "" {
		return nil, NewError(models.ErrNoPassword, "no password set for access "+access.ID)
	}

	args = append(args,
		"--module", access.ModuleID,
		"--login", access.Login,
		"--password", access.Password,
	)
	for i, field := range access.CustomFields {
		if field.Name == "" || field.Value == "" {
			return nil, NewError(models.ErrInvalidParameters,
				fmt.Sprintf("custom field #%d of access %s is incomplete", i, access.ID))
		}
		args = append(args, "--field", field.Name, field.Value)
	}
	return args, nil
}

func (s *ExternalSource) environ() []string {
	env := os.Environ()
	for _, k := range lo.Keys(s.extraEnv) {
		env = append(env, k+"="+s.extraEnv[k])
	}
	return env
}

// fetch wraps Invoke: when the failure smells like a broken install, a
// plain test call decides whether to report the source as not installed.
func (s *ExternalSource) fetch(ctx context.Context, cmd Command, access *models.Access, opts FetchOptions) (json.RawMessage, error) {
	raw, err := s.Invoke(ctx, cmd, access, InvokeOptions{Debug: opts.Debug || s.debug, ForceUpdate: opts.Update})
	if err == nil {
		return raw, nil
	}

	if lo.Contains(brokenInstallCodes, CodeOf(err)) && !s.Test(ctx) {
		return nil, NewError(models.ErrSourceNotInstalled, "source does not seem to be installed, skipping fetch")
	}

	event := log.Error().Err(err).Str("command", string(cmd))
	if code := CodeOf(err); code != models.FetchStatusOK {
		event = event.Str("code", string(code))
	}
	event.Msg("Fetch failed")
	return nil, err
}

func (s *ExternalSource) FetchAccounts(ctx context.Context, access *models.Access, opts FetchOptions) ([]models.FetchedAccount, error) {
	raw, err := s.fetch(ctx, CommandListAccounts, access, opts)
	if err != nil {
		return nil, err
	}
	var accounts []models.FetchedAccount
	if err := decodeValues(raw, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *ExternalSource) FetchTransactions(ctx context.Context, access *models.Access, opts FetchOptions) ([]models.FetchedTransaction, error) {
	raw, err := s.fetch(ctx, CommandListTransactions, access, opts)
	if err != nil {
		return nil, err
	}
	var txs []models.FetchedTransaction
	if err := decodeValues(raw, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// Test checks that the backend answers at all. A failure forgets the cached
// version so the next Version call asks again.
func (s *ExternalSource) Test(ctx context.Context) bool {
	log.Info().Msg("Checking that the source is installed and can be called")
	if _, err := s.Invoke(ctx, CommandTest, nil, InvokeOptions{}); err != nil {
		log.Error().Err(err).Msg("Source install test failed")
		s.version.reset()
		return false
	}
	return true
}

// Version never fails; an unknown version is reported as "".
func (s *ExternalSource) Version(ctx context.Context, force bool) string {
	return s.version.get(force, func() (string, error) {
		raw, err := s.Invoke(ctx, CommandVersion, nil, InvokeOptions{})
		if err != nil {
			return "", err
		}
		return decodeVersion(raw)
	})
}

// SupportsVersion reports whether v satisfies the configured minimum.
func (s *ExternalSource) SupportsVersion(v string) bool {
	return s.version.satisfies(v)
}

func (s *ExternalSource) UpdateModules(ctx context.Context) error {
	if _, err := s.Invoke(ctx, CommandUpdate, nil, InvokeOptions{ForceUpdate: true}); err != nil {
		return fmt.Errorf("updating source modules: %w", err)
	}
	return nil
}

func decodeValues(raw json.RawMessage, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSONResponse, err)
	}
	return nil
}

func decodeVersion(raw json.RawMessage) (string, error) {
	var v string
	if err := json.Unmarshal(raw, &v); err == nil {
		return v, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%w: version is neither a string nor a number", ErrInvalidJSONResponse)
	}
	return n.String(), nil
}
