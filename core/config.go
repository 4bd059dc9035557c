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

// Config holds the whole application configuration.
// Values come from defaults, an optional `config/.env.<env>` file and environment variables
// prefixed with ONHOLD_ (eg. ONHOLD_DATABASE_ENGINE for `database.engine`).
type Config struct {
	AppName      string
	Env          string // DEV (local; default), TEST, QA, PROD
	Build        string
	Debug        bool
	TestMode     bool
	SecretKey    string
	RollbarToken string
	WorkDir      string

	Server struct {
		Address                   string
		DebugAddress              string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	Database struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite only
	}

	Encryption struct {
		Key       string // 64 hex chars
		KeyFile   string
		Ephemeral bool
		HashSalt  string
	}

	Mail struct {
		SendgridAPIKey    string
		DefaultFromEmail  string
		OperationsMailbox string
		SendTimeout       time.Duration
	}

	Reminders struct {
		BatchSecret     string
		Times           []string // HH:MM
		Timezone        string
		AdvanceDays     int
		MaxAttempts     int
		ScheduleEnabled bool
	}
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.Mail.DefaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.Mail.DefaultFromEmail}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

func (c *Config) Location() *time.Location {
	if c.Reminders.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Reminders.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DatabaseAddress joins the database host and port.
func (c *Config) DatabaseAddress() string {
	if c.Database.Port == "" {
		return c.Database.Host
	}
	return c.Database.Host + ":" + c.Database.Port
}

func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "OnHold")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("workDir", ".")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 8*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "onhold")
	v.SetDefault("database.user", "onhold")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", false)
	v.SetDefault("database.path", "./data/onhold.db")

	v.SetDefault("encryption.key", "")
	v.SetDefault("encryption.keyFile", "")
	v.SetDefault("encryption.ephemeral", false)
	v.SetDefault("encryption.hashSalt", "onhold.core.cryptox")

	v.SetDefault("mail.sendgridApiKey", "")
	v.SetDefault("mail.defaultFromEmail", "noreply@localhost")
	v.SetDefault("mail.operationsMailbox", "")
	v.SetDefault("mail.sendTimeout", 10*time.Second)

	v.SetDefault("reminders.batchSecret", "")
	v.SetDefault("reminders.times", "08:00,10:00,12:00,14:00,16:00")
	v.SetDefault("reminders.timezone", "UTC")
	v.SetDefault("reminders.advanceDays", 7)
	v.SetDefault("reminders.maxAttempts", 3)
	v.SetDefault("reminders.scheduleEnabled", false)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	v.SetEnvPrefix("onhold")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(v.GetString("workDir"), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	conf := new(Config)
	conf.Env = env
	conf.TestMode = env == "TEST"
	conf.AppName = v.GetString("appName")
	conf.Build = v.GetString("build")
	conf.Debug = v.GetBool("debug")
	conf.SecretKey = v.GetString("secretKey")
	conf.RollbarToken = v.GetString("rollbarToken")
	conf.WorkDir = v.GetString("workDir")

	conf.Server.Address = v.GetString("server.address")
	conf.Server.DebugAddress = v.GetString("server.debugAddress")
	conf.Server.ShutdownTimeout = v.GetDuration("server.shutdownTimeout")
	conf.Server.JWTExpirationDelta = v.GetDuration("server.jwtExpirationDelta")
	conf.Server.JWTRefreshExpirationDelta = v.GetDuration("server.jwtRefreshExpirationDelta")

	conf.Database.Engine = strings.ToLower(v.GetString("database.engine"))
	conf.Database.Host = v.GetString("database.host")
	conf.Database.Port = v.GetString("database.port")
	conf.Database.Name = v.GetString("database.name")
	conf.Database.User = v.GetString("database.user")
	conf.Database.Password = v.GetString("database.password")
	conf.Database.AdminUser = v.GetString("database.adminUser")
	conf.Database.AdminPassword = v.GetString("database.adminPassword")
	conf.Database.DisableTLS = v.GetBool("database.disableTLS")
	conf.Database.Path = v.GetString("database.path")

	conf.Encryption.Key = v.GetString("encryption.key")
	conf.Encryption.KeyFile = v.GetString("encryption.keyFile")
	conf.Encryption.Ephemeral = v.GetBool("encryption.ephemeral")
	conf.Encryption.HashSalt = v.GetString("encryption.hashSalt")

	conf.Mail.SendgridAPIKey = v.GetString("mail.sendgridApiKey")
	conf.Mail.DefaultFromEmail = v.GetString("mail.defaultFromEmail")
	conf.Mail.OperationsMailbox = v.GetString("mail.operationsMailbox")
	conf.Mail.SendTimeout = v.GetDuration("mail.sendTimeout")

	conf.Reminders.BatchSecret = v.GetString("reminders.batchSecret")
	conf.Reminders.Times = SplitCSV(v.GetString("reminders.times"))
	conf.Reminders.Timezone = v.GetString("reminders.timezone")
	conf.Reminders.AdvanceDays = v.GetInt("reminders.advanceDays")
	conf.Reminders.MaxAttempts = v.GetInt("reminders.maxAttempts")
	conf.Reminders.ScheduleEnabled = v.GetBool("reminders.scheduleEnabled")

	return conf
}
