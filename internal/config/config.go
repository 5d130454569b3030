package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type NSQ struct {
	NsqdTCPAddr    string // e.g. nsqd:4150
	LookupHTTPAddr string // e.g. http://nsqlookupd:4161
	TriggersTopic  string // topic the product's event sources publish to
	Channel        string // channel name for dispatcher instances
}

type Courier struct {
	URL        string // base URL of the publishing service
	Token      string // bearer token for publish submissions
	SigningKey string // shared key for inbound callback JWTs
}

type Redis struct {
	Addr string
	Pass string
	DB   int
}

type Callback struct {
	BaseURL          string        // public base URL used to build callback URLs
	HTTPPort         string        // callback server listen port
	DisableThreshold int           // consecutive terminal failures before auto-disable
	StreakWindow     time.Duration // failure streak expiry window
}

type Config struct {
	AppName        string
	HTTPPort       string // dispatcher metrics/health port
	DB             DB
	NSQ            NSQ
	Courier        Courier
	Redis          Redis
	Callback       Callback
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func FromEnv() Config {
	return Config{
		AppName:  getenv("APP_NAME", "pagehook"),
		HTTPPort: getenv("HTTP_PORT", ":8082"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "pagehook"),
		},
		NSQ: NSQ{
			NsqdTCPAddr:    getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr: getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			TriggersTopic:  getenv("NSQ_TRIGGERS_TOPIC", "hook-triggers"),
			Channel:        getenv("NSQ_CHANNEL", "dispatchers"),
		},
		Courier: Courier{
			URL:        getenv("COURIER_URL", "http://courier:8090"),
			Token:      getenv("COURIER_TOKEN", ""),
			SigningKey: getenv("COURIER_SIGNING_KEY", ""),
		},
		Redis: Redis{
			Addr: getenv("REDIS_ADDR", "redis:6379"),
			Pass: getenv("REDIS_PASS", ""),
			DB:   getenvInt("REDIS_DB", 0),
		},
		Callback: Callback{
			BaseURL:          getenv("CALLBACK_BASE_URL", "http://localhost:8080"),
			HTTPPort:         getenv("CALLBACK_HTTP_PORT", ":8080"),
			DisableThreshold: getenvInt("DISABLE_THRESHOLD", 5),
			StreakWindow:     getenvDuration("STREAK_WINDOW", 24*time.Hour),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
