package config

import (
	"fmt"
	"os"
	"supervisor/pkg/exchange/paper"
	"supervisor/pkg/s3client"
	"supervisor/pkg/types"
	"supervisor/pkg/utils"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListen            = ":3000"
	DefaultInterval          = 100 * time.Millisecond
	DefaultEntryPollInterval = time.Second
)

type Config struct {
	Http              *HttpConfig                  `yaml:"http"`
	ExchangeConfigs   map[string]*ExchangeConfig   `yaml:"exchange"`
	FeedConfigs       map[string]*FeedConfig       `yaml:"feed"`
	SupervisorConfigs map[string]*SupervisorConfig `yaml:"supervisor"`
}

type HttpConfig struct {
	Listen string `yaml:"listen"`
}

type ExchangeConfig struct {
	ExchangeName types.ExchangeName `yaml:"exchange"`
	Instruments  []paper.Instrument `yaml:"instruments"` // paper only
}

type FeedConfig struct {
	WsUrl string `yaml:"wsUrl"`
	// Exchange names a paper exchange whose last price follows this feed (optional)
	Exchange string `yaml:"exchange"`
}

type SupervisorConfig struct {
	Exchange          string         `yaml:"exchange"`
	Feed              string         `yaml:"feed"` // price source of trailing orders (optional)
	Symbol            string         `yaml:"symbol"`
	Interval          time.Duration  `yaml:"interval"`
	EntryPollInterval time.Duration  `yaml:"entryPollInterval"`
	ManageOrders      *bool          `yaml:"manageOrders"`
	ManagePosition    *bool          `yaml:"managePosition"`
	PositionSize      int64          `yaml:"positionSize"`
	Orders            []*OrderConfig `yaml:"orders"`
}

// OrderConfig is a desired order added when the supervisor boots.
type OrderConfig struct {
	Type           types.OrderType `yaml:"type"`
	Side           types.OrderSide `yaml:"side"`
	Qty            int64           `yaml:"qty"`
	Price          float64         `yaml:"price"`
	StopPx         float64         `yaml:"stopPx"`
	TrailingOffset float64         `yaml:"trailingOffset"` // percent; stop orders only
	Hidden         bool            `yaml:"hidden"`
	Close          bool            `yaml:"close"`
	ReduceOnly     bool            `yaml:"reduceOnly"`
	Passive        bool            `yaml:"passive"`
}

var yamlFiles = map[types.EnvName]string{
	types.EnvLocal: "supervisor.yaml",
	types.EnvDev:   "supervisor.dev.yaml",
	types.EnvProd:  "supervisor.prod.yaml",
}

func LoadConfig(env Environment) (*Config, error) {
	fileName := yamlFiles[env.EnvName]

	// read YAML file
	var data []byte
	var err error
	switch env.YamlMode {
	case types.YamlModeS3:
		client, err := s3client.Init(utils.LoadEnv("AWS_ACCESS_KEY"), utils.LoadEnv("AWS_SECRET_KEY"))
		if err != nil {
			return nil, err
		}
		data, err = s3client.GetObject(client, utils.LoadEnv("CONFIG_S3_BUCKET"), fileName)
		if err != nil {
			return nil, fmt.Errorf("fail to load config file '%s' from s3: %w", fileName, err)
		}
	default:
		data, err = os.ReadFile(fileName)
		if err != nil {
			return nil, fmt.Errorf("fail to load config file '%s': %w", fileName, err)
		}
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML document, fills the defaults and validates it.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("fail to decode config: %w", err)
	}
	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) setDefaults() {
	if c.Http == nil {
		c.Http = &HttpConfig{}
	}
	if c.Http.Listen == "" {
		c.Http.Listen = DefaultListen
	}
	for _, sc := range c.SupervisorConfigs {
		if sc.Interval == 0 {
			sc.Interval = DefaultInterval
		}
		if sc.EntryPollInterval == 0 {
			sc.EntryPollInterval = DefaultEntryPollInterval
		}
		if sc.ManageOrders == nil {
			sc.ManageOrders = ptr(true)
		}
		if sc.ManagePosition == nil {
			sc.ManagePosition = ptr(true)
		}
	}
}

func (c *Config) Validate() error {
	for exchgId, ec := range c.ExchangeConfigs {
		switch ec.ExchangeName {
		case types.ExchangePaper:
			for _, inst := range ec.Instruments {
				if inst.Symbol == "" || inst.TickSize <= 0 || inst.LastPrice <= 0 {
					return fmt.Errorf("exchange '%s': instrument needs symbol, tickSize and lastPrice: %+v", exchgId, inst)
				}
			}
		case types.ExchangeBitmex:
			return fmt.Errorf("exchange '%s': %s exchange is not supported yet", exchgId, ec.ExchangeName)
		default:
			return fmt.Errorf("exchange '%s': unknown exchange %q", exchgId, ec.ExchangeName)
		}
	}
	for feedId, fc := range c.FeedConfigs {
		if fc.WsUrl == "" {
			return fmt.Errorf("feed '%s': wsUrl is required", feedId)
		}
		if fc.Exchange != "" {
			if _, ok := c.ExchangeConfigs[fc.Exchange]; !ok {
				return fmt.Errorf("feed '%s': exchange '%s' not found", feedId, fc.Exchange)
			}
		}
	}
	for svId, sc := range c.SupervisorConfigs {
		if sc.Symbol == "" {
			return fmt.Errorf("supervisor '%s': symbol is required", svId)
		}
		if _, ok := c.ExchangeConfigs[sc.Exchange]; !ok {
			return fmt.Errorf("supervisor '%s': exchange '%s' not found", svId, sc.Exchange)
		}
		if sc.Feed != "" {
			if _, ok := c.FeedConfigs[sc.Feed]; !ok {
				return fmt.Errorf("supervisor '%s': feed '%s' not found", svId, sc.Feed)
			}
		}
		if sc.Interval < 0 || sc.EntryPollInterval < 0 {
			return fmt.Errorf("supervisor '%s': intervals must be positive", svId)
		}
		for i, oc := range sc.Orders {
			if oc.TrailingOffset != 0 && oc.Type != types.OrderStop {
				return fmt.Errorf("supervisor '%s': order %d: only stop orders can trail", svId, i)
			}
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
