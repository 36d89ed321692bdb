package core

import (
	"context"
	"fmt"
	"supervisor/config"
	"supervisor/pkg/order"
	"supervisor/pkg/stream"
	"supervisor/pkg/types"

	log "github.com/sirupsen/logrus"
)

func Bootstrap(ctx context.Context, config config.Config) error {
	log.Info("🦾 Bootstrapping...")

	// register exchanges
	for exchgId, exchgConfig := range config.ExchangeConfigs {
		if err := RegisterExchange(exchgId, exchgConfig); err != nil {
			return fmt.Errorf("failed to register exchange %v: %w", exchgId, err)
		}
		log.Infof("exchange '%v' registered", exchgId)
	}

	// register feeds, a paper venue may follow one for its last price
	for feedId, feedConfig := range config.FeedConfigs {
		RegisterFeed(feedId, feedConfig)
		log.Infof("feed '%v' registered", feedId)
		if feedConfig.Exchange == "" {
			continue
		}
		if err := followFeed(ctx, feedId, feedConfig.Exchange, config.ExchangeConfigs[feedConfig.Exchange]); err != nil {
			return err
		}
	}

	// register supervisors and seed their desired state
	for svId, svConfig := range config.SupervisorConfigs {
		if err := RegisterSupervisor(svId, svConfig); err != nil {
			return fmt.Errorf("failed to register supervisor %v: %w", svId, err)
		}
		sv := Supervisors[svId]
		sv.SetPositionSize(svConfig.PositionSize)
		for _, oc := range svConfig.Orders {
			o := newOrder(svConfig.Symbol, oc)
			var err error
			if oc.TrailingOffset > 0 {
				err = sv.AddTrailingOrder(ctx, o, oc.TrailingOffset)
			} else {
				err = sv.AddOrder(o)
			}
			if err != nil {
				return fmt.Errorf("failed to add order to supervisor %v: %w", svId, err)
			}
		}
		log.Infof("supervisor '%v' registered: %v with %d orders", svId, svConfig.Symbol, len(svConfig.Orders))
	}
	return nil
}

func followFeed(ctx context.Context, feedId string, exchgId string, exchgConfig *config.ExchangeConfig) error {
	venue, exists := PaperVenues[exchgId]
	if !exists {
		return fmt.Errorf("feed %v: exchange %v is not a paper exchange", feedId, exchgId)
	}
	for _, inst := range exchgConfig.Instruments {
		_, err := Feeds[feedId].Subscribe(ctx, inst.Symbol, func(_ stream.Stream, e types.PriceTickEvent) {
			if err := venue.SetLastPrice(e.Symbol, e.Price); err != nil {
				log.Warnf("fail to forward price to exchange %v: %v", exchgId, err)
			}
		})
		if err != nil {
			return fmt.Errorf("feed %v: fail to subscribe %v: %w", feedId, inst.Symbol, err)
		}
	}
	return nil
}

func newOrder(symbol string, oc *config.OrderConfig) *order.Order {
	var opts []order.Option
	if oc.Price != 0 {
		opts = append(opts, order.WithPrice(oc.Price))
	}
	if oc.StopPx != 0 {
		opts = append(opts, order.WithStopPx(oc.StopPx))
	}
	if oc.Hidden {
		opts = append(opts, order.WithHidden())
	}
	if oc.Close {
		opts = append(opts, order.WithClose())
	}
	if oc.ReduceOnly {
		opts = append(opts, order.WithReduceOnly())
	}
	if oc.Passive {
		opts = append(opts, order.WithPassive())
	}
	return order.New(symbol, oc.Type, oc.Side, oc.Qty, opts...)
}
