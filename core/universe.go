package core

import (
	"fmt"
	"supervisor/config"
	"supervisor/pkg/exchange"
	"supervisor/pkg/exchange/paper"
	"supervisor/pkg/feed"
	"supervisor/pkg/supervisor"
	"supervisor/pkg/types"

	log "github.com/sirupsen/logrus"
)

var Exchanges map[string]exchange.Gateway
var PaperVenues map[string]*paper.Venue
var Feeds map[string]*feed.Source
var Supervisors map[string]*supervisor.Supervisor

func init() {
	Exchanges = make(map[string]exchange.Gateway)
	PaperVenues = make(map[string]*paper.Venue)
	Feeds = make(map[string]*feed.Source)
	Supervisors = make(map[string]*supervisor.Supervisor)
}

// NewExchange builds the gateway of an exchange config.
func NewExchange(exchgId string, exchgConfig *config.ExchangeConfig) (exchange.Gateway, error) {
	logger := log.WithField("exchangeId", exchgId)
	switch exchgConfig.ExchangeName {
	case types.ExchangePaper:
		return paper.New(logger, exchgConfig.Instruments...), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %v", exchgConfig.ExchangeName)
	}
}

func RegisterExchange(exchgId string, exchgConfig *config.ExchangeConfig) error {
	gw, err := NewExchange(exchgId, exchgConfig)
	if err != nil {
		return err
	}
	Exchanges[exchgId] = gw
	if venue, ok := gw.(*paper.Venue); ok {
		PaperVenues[exchgId] = venue
	}
	return nil
}

func RegisterFeed(feedId string, feedConfig *config.FeedConfig) {
	Feeds[feedId] = feed.NewSource(feedConfig.WsUrl, log.WithField("feedId", feedId))
}

func RegisterSupervisor(svId string, svConfig *config.SupervisorConfig) error {
	gw, exists := Exchanges[svConfig.Exchange]
	if !exists {
		return fmt.Errorf("exchange %v not found", svConfig.Exchange)
	}
	opts := []supervisor.Option{
		supervisor.WithInterval(svConfig.Interval),
		supervisor.WithEntryPollInterval(svConfig.EntryPollInterval),
		supervisor.WithManageOrders(*svConfig.ManageOrders),
		supervisor.WithManagePosition(*svConfig.ManagePosition),
	}
	if svConfig.Feed != "" {
		src, exists := Feeds[svConfig.Feed]
		if !exists {
			return fmt.Errorf("feed %v not found", svConfig.Feed)
		}
		opts = append(opts, supervisor.WithPriceSource(src))
	}
	sv, err := supervisor.New(gw, svConfig.Symbol, log.WithField("supervisorId", svId), opts...)
	if err != nil {
		return err
	}
	Supervisors[svId] = sv
	return nil
}
