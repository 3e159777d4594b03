// Package config holds the dkp server configuration.  Values are taken, in
// increasing order of priority, from built-in defaults, DKP_* environment
// variables, an optional TOML file and command line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/rusq/osenv/v2"

	"dkprun/internal/wire"
)

// ErrInvalid is returned when the configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the server configuration.
type Config struct {
	// Bind is the address to listen on, empty means all interfaces.
	Bind string `toml:"bind" validate:"omitempty,ip|hostname"`
	Port int    `toml:"port" validate:"min=1,max=65535"`
	// Dir is the destination directory for all transfers.
	Dir string `toml:"dir" validate:"required"`
	// MaxConns limits concurrently open connections, 0 is unlimited.
	MaxConns int `toml:"max_conns" validate:"gte=0"`
	// HeaderTimeout is how long a client may take to send the command
	// header, 0 waits forever.
	HeaderTimeout time.Duration `toml:"header_timeout" validate:"gte=0"`

	LogLevel  string `toml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `toml:"log_format" validate:"oneof=text json"`
}

// Default returns the configuration built from defaults and the environment.
func Default() Config {
	return Config{
		Bind:          osenv.Value("DKP_BIND", ""),
		Port:          osenv.Value("DKP_PORT", wire.DefaultPort),
		Dir:           osenv.Value("DKP_DIR", "."),
		MaxConns:      osenv.Value("DKP_MAX_CONNS", 0),
		HeaderTimeout: osenv.Value("DKP_HEADER_TIMEOUT", time.Duration(0)),
		LogLevel:      osenv.Value("DKP_LOG_LEVEL", "info"),
		LogFormat:     osenv.Value("DKP_LOG_FORMAT", "text"),
	}
}

// Load returns the Default configuration overridden by the TOML file at
// path.  Keys missing from the file keep their default value.  Unknown keys
// are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("loading %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		keys := make([]string, len(undec))
		for i, k := range undec {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("loading %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// Validate checks the configuration.  The returned error wraps ErrInvalid
// and validator.ValidationErrors.
func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// PrintErrors writes one line per failed field of a validation error.  Other
// errors are written as is.
func PrintErrors(w io.Writer, err error) error {
	if err == nil {
		return nil
	}
	var vErr validator.ValidationErrors
	if !errors.As(err, &vErr) {
		_, werr := fmt.Fprintln(w, err)
		return werr
	}
	if _, werr := fmt.Fprintln(w, "Detected problems:"); werr != nil {
		return werr
	}
	for i, fe := range vErr {
		if _, werr := fmt.Fprintf(w, "\t%2d: %s: failed %q (value: %v)\n", i+1, fe.Field(), fe.Tag(), fe.Value()); werr != nil {
			return werr
		}
	}
	return nil
}
