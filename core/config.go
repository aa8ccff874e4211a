package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address         string
		DebugAddress    string
		Host            string
		ShutdownTimeout time.Duration
	}

	SessionConfig struct {
		CookieName     string
		TTL            time.Duration
		RestoreTimeout time.Duration // upper bound of a credential restore
		RestoreWait    time.Duration // how long a request waits for a pending restore
		RecheckEvery   time.Duration // how often a cached session checks that its credential still exists
		Store          string        // memory | redis | postgres
		SecureCookie   bool
	}

	ClassesAPIConfig struct {
		BaseURL string
		Timeout time.Duration
	}

	RedisConfig struct {
		Address  string
		Password string
		DB       int
	}

	DatabaseConfig struct {
		Engine     string
		Host       string
		Port       string
		Name       string
		User       string
		Password   string
		DisableTLS bool
	}

	GateConfig struct {
		LoginPath         string
		UnregisteredPaths string // deny | allow
	}

	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		SendgridAPIKey   string
		RollbarToken     string

		Server     ServerConfig
		Session    SessionConfig
		ClassesAPI ClassesAPIConfig
		Redis      RedisConfig
		Database   DatabaseConfig
		Gate       GateConfig
	}
)

func (c DatabaseConfig) Address() string {
	return c.Host + ":" + c.Port
}

// NewConfig loads the app configuration from the environment.
// ENV selects the environment: DEV (local; default), TEST, QA, PROD.
// Variables are read with the environment as prefix, e.g. PROD_SECRETKEY.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Masomo")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:8000")
	v.SetDefault("defaultFromEmail", "Masomo <noreply@localhost>")
	v.SetDefault("sendgridAPIKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverDebugAddress", ":4000")
	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)

	v.SetDefault("sessionCookieName", "masomo_session")
	v.SetDefault("sessionTTL", 7*24*time.Hour)
	v.SetDefault("sessionRestoreTimeout", 10*time.Second)
	v.SetDefault("sessionRestoreWait", 750*time.Millisecond)
	v.SetDefault("sessionRecheckEvery", 5*time.Second)
	v.SetDefault("sessionStore", "memory")
	v.SetDefault("sessionSecureCookie", false)

	v.SetDefault("classesAPIBaseURL", "http://localhost:8080/api")
	v.SetDefault("classesAPITimeout", 10*time.Second)

	v.SetDefault("redisAddress", "localhost:6379")
	v.SetDefault("redisPassword", "")
	v.SetDefault("redisDB", 0)

	v.SetDefault("databaseEngine", "postgres")
	v.SetDefault("databaseHost", "localhost")
	v.SetDefault("databasePort", "5432")
	v.SetDefault("databaseName", "masomo_web")
	v.SetDefault("databaseUser", "postgres")
	v.SetDefault("databasePassword", "")
	v.SetDefault("databaseDisableTLS", true)

	v.SetDefault("gateLoginPath", "/login")
	v.SetDefault("gateUnregisteredPaths", "deny")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	if wd, err := os.Getwd(); err == nil {
		dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	v.AutomaticEnv()

	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}

	return &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail: *from,
		SendgridAPIKey:   v.GetString("sendgridAPIKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		Server: ServerConfig{
			Address:         v.GetString("serverAddress"),
			DebugAddress:    v.GetString("serverDebugAddress"),
			Host:            v.GetString("serverHost"),
			ShutdownTimeout: v.GetDuration("serverShutdownTimeout"),
		},
		Session: SessionConfig{
			CookieName:     v.GetString("sessionCookieName"),
			TTL:            v.GetDuration("sessionTTL"),
			RestoreTimeout: v.GetDuration("sessionRestoreTimeout"),
			RestoreWait:    v.GetDuration("sessionRestoreWait"),
			RecheckEvery:   v.GetDuration("sessionRecheckEvery"),
			Store:          strings.ToLower(v.GetString("sessionStore")),
			SecureCookie:   v.GetBool("sessionSecureCookie"),
		},
		ClassesAPI: ClassesAPIConfig{
			BaseURL: strings.TrimRight(v.GetString("classesAPIBaseURL"), "/"),
			Timeout: v.GetDuration("classesAPITimeout"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redisAddress"),
			Password: v.GetString("redisPassword"),
			DB:       v.GetInt("redisDB"),
		},
		Database: DatabaseConfig{
			Engine:     v.GetString("databaseEngine"),
			Host:       v.GetString("databaseHost"),
			Port:       v.GetString("databasePort"),
			Name:       v.GetString("databaseName"),
			User:       v.GetString("databaseUser"),
			Password:   v.GetString("databasePassword"),
			DisableTLS: v.GetBool("databaseDisableTLS"),
		},
		Gate: GateConfig{
			LoginPath:         v.GetString("gateLoginPath"),
			UnregisteredPaths: strings.ToLower(v.GetString("gateUnregisteredPaths")),
		},
	}
}
