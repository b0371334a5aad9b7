package configuration

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/lms-admin/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the given env files from the working directory. When none of
// them exist there, the nearest parent directory holding a go.mod is tried.
func LoadEnv(envFiles []string) (int, error) {
	existing := existingFiles("", envFiles)
	if len(existing) == 0 {
		if root, ok := findModuleRoot(); ok {
			existing = existingFiles(root, envFiles)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func existingFiles(dir string, envFiles []string) []string {
	out := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		path := file
		if dir != "" {
			path = filepath.Join(dir, file)
		}
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			out = append(out, path)
		}
	}
	return out
}

func findModuleRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"lms_admin"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type SMTPOptions struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	User     string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM" envDefault:"noreply@localhost"`
}

func (s *SMTPOptions) Enabled() bool {
	return s.Host != ""
}

type ImportOptions struct {
	MaxRows          int           `env:"IMPORT_MAX_ROWS" envDefault:"5000"`
	DefaultDelimiter string        `env:"IMPORT_DEFAULT_DELIMITER" envDefault:"semicolon"`
	DefaultEncoding  string        `env:"IMPORT_DEFAULT_ENCODING" envDefault:"auto"`
	RoleLadderPath   string        `env:"IMPORT_ROLE_LADDER_PATH" envDefault:""`
	PreviewTTL       time.Duration `env:"IMPORT_PREVIEW_TTL" envDefault:"30m"`
	ReservationTTL   time.Duration `env:"IMPORT_RESERVATION_TTL" envDefault:"10m"`
	ReportDir        string        `env:"IMPORT_REPORT_DIR" envDefault:"./reports"`
	ValidateWorkers  int           `env:"IMPORT_VALIDATE_WORKERS" envDefault:"4"`
	// Reservations is "memory" or "redis".
	Reservations string `env:"IMPORT_RESERVATIONS" envDefault:"memory"`
}

func (o *ImportOptions) Validate() error {
	if o.MaxRows <= 0 {
		return fmt.Errorf("IMPORT_MAX_ROWS must be positive, got %d", o.MaxRows)
	}
	switch o.DefaultDelimiter {
	case "semicolon", "comma", "tab":
	default:
		return fmt.Errorf("invalid IMPORT_DEFAULT_DELIMITER=%q (expected semicolon|comma|tab)", o.DefaultDelimiter)
	}
	switch o.DefaultEncoding {
	case "auto", "utf-8", "iso-8859-1", "windows-1250":
	default:
		return fmt.Errorf("invalid IMPORT_DEFAULT_ENCODING=%q", o.DefaultEncoding)
	}
	switch o.Reservations {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid IMPORT_RESERVATIONS=%q (expected memory|redis)", o.Reservations)
	}
	if o.ValidateWorkers < 1 {
		o.ValidateWorkers = 1
	}
	return nil
}

// DefaultImportOptions returns ImportOptions at their tag defaults, ignoring
// the process environment.
func DefaultImportOptions() ImportOptions {
	var o ImportOptions
	if err := env.ParseWithOptions(&o, env.Options{Environment: map[string]string{}}); err != nil {
		panic(err)
	}
	return o
}

type OpenTelemetryOptions struct {
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"lms-admin"`
	// OTLP/HTTP collector URL, e.g. http://localhost:4318. Tracing is off when empty.
	Endpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type RateLimitOptions struct {
	Enabled   bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	GlobalRPS int    `env:"RATE_LIMIT_GLOBAL_RPS" envDefault:"1000"`
	Storage   string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
	RedisURL  string `env:"RATE_LIMIT_REDIS_URL"`
}

func (r *RateLimitOptions) Validate() error {
	if r.GlobalRPS < 0 {
		return fmt.Errorf("rate limit GlobalRPS must be non-negative, got %d", r.GlobalRPS)
	}
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	if r.Storage == "redis" && r.RedisURL == "" {
		return fmt.Errorf("rate limit RedisURL is required when Storage is 'redis'")
	}
	return nil
}

type CORSOptions struct {
	// Origins of the LMS front-ends allowed to call the import API. Empty disables CORS.
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

type Configuration struct {
	Database      DatabaseOptions
	SMTP          SMTPOptions
	Import        ImportOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	RateLimit     RateLimitOptions
	CORS          CORSOptions

	RedisURL         string `env:"REDIS_URL" envDefault:"localhost:6379"`
	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	Domain           string `env:"DOMAIN" envDefault:"localhost"`
	Origin           string `env:"ORIGIN" envDefault:"http://localhost:3200"`
	MaxUploadSize    int64  `env:"MAX_UPLOAD_SIZE" envDefault:"8388608"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/app.log"`
	// Request id header; a random uuid is generated when absent.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	RealIPHeader    string `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`
	// Identity of the importing user, set by the fronting platform.
	ActorHeader      string `env:"ACTOR_HEADER" envDefault:"X-Actor-Id"`
	ActorEmailHeader string `env:"ACTOR_EMAIL_HEADER" envDefault:"X-Actor-Email"`

	logFile io.Closer
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func (c *Configuration) Scheme() string {
	if c.GoAppEnvironment == Production {
		return "https"
	}
	return "http"
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := c.parse(); err != nil {
		return err
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger
	return nil
}

// parse fills c from the process environment and derives computed fields.
func (c *Configuration) parse() error {
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.Import.Validate(); err != nil {
		return fmt.Errorf("import configuration error: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration error: %w", err)
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	if os.Getenv("ORIGIN") == "" {
		if c.GoAppEnvironment == "development" {
			c.Origin = fmt.Sprintf("%s://%s:%d", c.Scheme(), c.Domain, c.ServerPort)
		} else {
			c.Origin = fmt.Sprintf("%s://%s", c.Scheme(), c.Domain)
		}
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
