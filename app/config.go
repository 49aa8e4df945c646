package simpchat

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/spf13/viper"
)

type Config struct {
	// ServerURL is the base URL of the REST backend.
	ServerURL string `validate:"required,url"`
	// HubURL is the websocket URL of the realtime hub.
	HubURL string `validate:"required"`
	// Token is the bearer token attached to every request and to the hub
	// connection.
	Token     string `validate:"required"`
	Reconnect struct {
		// MaxAttempts is the number of automatic reconnect attempts before
		// the client gives up. The default is 5.
		MaxAttempts uint64 `validate:"required"`
		// BaseDelay is the first reconnect delay; it doubles each attempt.
		BaseDelay time.Duration `validate:"required"`
		// MaxDelay caps the reconnect delay growth.
		MaxDelay time.Duration `validate:"required"`
	}
	Receipts struct {
		// Debounce is the quiet period before a read-receipt batch is
		// flushed. The default is 500ms.
		Debounce time.Duration `validate:"required"`
		// RetryBaseDelay, RetryMaxDelay and RetryAttempts bound the retry
		// loop for a failed flush.
		RetryBaseDelay time.Duration `validate:"required"`
		RetryMaxDelay  time.Duration `validate:"required"`
		RetryAttempts  uint64
	}
	Reconcile struct {
		// Timeout bounds the poll loop that looks for the server-confirmed
		// chat after an optimistic send to a new counterparty.
		Timeout time.Duration `validate:"required"`
		// Poll is the interval between chat list reloads during
		// reconciliation.
		Poll time.Duration `validate:"required"`
	}
	// CallTimeout applies to every REST request and hub invocation.
	CallTimeout time.Duration `validate:"required"`
	valid       bool
}

// LoadConfig loads the configuration from the config file and environment
// variables. Any invalid value is deferred to the validation step.
func LoadConfig(paths ...string) (*Config, error) {
	config := &Config{}
	viper.SetConfigName("config")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		viper.AddConfigPath(p)
	}
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("simpchat")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("serverurl", "http://localhost:8080/api")
	viper.SetDefault("huburl", "ws://localhost:8080/hub")
	viper.SetDefault("reconnect.maxattempts", 5)
	viper.SetDefault("reconnect.basedelay", "1s")
	viper.SetDefault("reconnect.maxdelay", "30s")
	viper.SetDefault("receipts.debounce", "500ms")
	viper.SetDefault("receipts.retrybasedelay", "500ms")
	viper.SetDefault("receipts.retrymaxdelay", "5s")
	viper.SetDefault("receipts.retryattempts", 3)
	viper.SetDefault("reconcile.timeout", "10s")
	viper.SetDefault("reconcile.poll", "1s")
	viper.SetDefault("calltimeout", "10s")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := viper.Unmarshal(&config,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(",")),
		),
	); err != nil {
		// defer error to validation step
		return config, nil
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.valid {
		return nil
	}
	err := validate.Struct(c)
	if err != nil {
		return err
	}
	c.valid = true
	return nil
}

func FormatValidationErrors(err error) string {

	errors, ok := err.(validator.ValidationErrors)
	if !ok {
		return ""
	}
	trans, _ := uniTrans.GetTranslator("en")
	translated := errors.Translate(trans)

	var sb strings.Builder
	for _, v := range translated {
		sb.WriteString(v)
		sb.WriteString("\n")
	}
	return sb.String()
}
