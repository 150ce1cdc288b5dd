package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	dbConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	serverConfig struct {
		Host               string
		Address            string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
		CORSOrigins        []string
	}

	driveConfig struct {
		MinNoticeDays       int
		RecheckNoticeOnEdit bool
		Timezone            string
		ReminderSchedule    string // cron spec; empty disables the reminders
		ReminderDaysAhead   int
	}

	Config struct {
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		WorkDir          string
		FrontendBaseURL  string
		RollbarToken     string
		SendgridApiKey   string
		Storage          string // postgres | memory
		DefaultFromEmail mail.Address
		NotifyEmails     []mail.Address

		Database dbConfig
		Server   serverConfig
		Drive    driveConfig
	}
)

func (c dbConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Location returns the time zone used to derive calendar dates; falls back to UTC.
func (c driveConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NewConfig loads the app config from the environment (with a `config/.env.<env>` file if it exists).
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "SchoolVax")
	v.SetDefault("secretKey", "k1#u8v@7$xq2_rv+8dz&uoxh2(h!x)9yh^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("storage", "postgres")
	v.SetDefault("defaultFromEmail", "SchoolVax <noreply@localhost>")
	v.SetDefault("notifyEmails", []string{})

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "schoolvax")
	v.SetDefault("dbUser", "schoolvax")
	v.SetDefault("dbPassword", "schoolvax")
	v.SetDefault("dbAdminUser", "")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddress", ":8080")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("corsOrigins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})

	v.SetDefault("driveMinNoticeDays", 15)
	v.SetDefault("driveRecheckNoticeOnEdit", true)
	v.SetDefault("driveTimezone", "UTC")
	v.SetDefault("driveReminderSchedule", "0 7 * * *")
	v.SetDefault("driveReminderDaysAhead", 1)

	v.SetEnvPrefix(env)
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		WorkDir:          wd,
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		Storage:          CleanString(v.GetString("storage"), true /* lower */),
		DefaultFromEmail: parseAddress(v.GetString("defaultFromEmail")),
		NotifyEmails:     parseAddresses(v.GetStringSlice("notifyEmails")),
		Database: dbConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		Server: serverConfig{
			Host:               v.GetString("serverHost"),
			Address:            v.GetString("serverAddress"),
			DebugHost:          v.GetString("serverDebugHost"),
			ShutdownTimeout:    v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("jwtExpirationDelta"),
			CORSOrigins:        v.GetStringSlice("corsOrigins"),
		},
		Drive: driveConfig{
			MinNoticeDays:       v.GetInt("driveMinNoticeDays"),
			RecheckNoticeOnEdit: v.GetBool("driveRecheckNoticeOnEdit"),
			Timezone:            v.GetString("driveTimezone"),
			ReminderSchedule:    CleanString(v.GetString("driveReminderSchedule")),
			ReminderDaysAhead:   v.GetInt("driveReminderDaysAhead"),
		},
	}
}

func parseAddress(s string) mail.Address {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return mail.Address{Address: CleanString(s)}
	}
	return *addr
}

func parseAddresses(list []string) []mail.Address {
	addrs := make([]mail.Address, 0, len(list))
	for _, item := range list {
		// env values come in as a single comma separated string
		for _, s := range strings.Split(item, ",") {
			if s = CleanString(s); s != "" {
				addrs = append(addrs, parseAddress(s))
			}
		}
	}
	return addrs
}
