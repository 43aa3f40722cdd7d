package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"OneTapTip/internal/events"
	"OneTapTip/internal/events/kafka"
	"OneTapTip/internal/handler"
	"OneTapTip/internal/ledger"
	"OneTapTip/internal/middleware"
	"OneTapTip/internal/mirror"
	"OneTapTip/internal/oracle"
	"OneTapTip/internal/pipeline"
	"OneTapTip/internal/session"
	"OneTapTip/internal/store"
	"OneTapTip/internal/store/memory"
	"OneTapTip/internal/store/mongodb"
	"OneTapTip/internal/wallet"
)

type Config struct {
	Solana struct {
		RPCURL      string `mapstructure:"rpc_url"`
		WSURL       string `mapstructure:"ws_url"`
		PayerSecret string `mapstructure:"payer_secret"`
		Cluster     string `mapstructure:"cluster"`
	} `mapstructure:"solana"`
	Mongo struct {
		URI      string `mapstructure:"uri"`
		Database string `mapstructure:"database"`
	} `mapstructure:"mongo"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
	} `mapstructure:"kafka"`
	App struct {
		Port           int  `mapstructure:"port"`
		PollInterval   int  `mapstructure:"poll_interval"`   // seconds
		ConfirmTimeout int  `mapstructure:"confirm_timeout"` // seconds
		AutoConnect    bool `mapstructure:"auto_connect"`
	} `mapstructure:"app"`
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetDefault("solana.cluster", "devnet")
	viper.SetDefault("mongo.database", "onetaptip")
	viper.SetDefault("app.port", 8080)
	viper.SetDefault("app.poll_interval", 15)
	viper.SetDefault("app.confirm_timeout", 60)
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal("failed to read config", zap.Error(err))
	}
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatal("failed to parse config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Receipt store: Mongo when configured, in-memory otherwise (dev mode).
	var receipts store.ReceiptStore
	if cfg.Mongo.URI != "" {
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			log.Fatal("failed to create mongo client", zap.Error(err))
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn("mongo disconnect failed", zap.Error(err))
			}
		}()
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := client.Ping(pingCtx, nil); err != nil {
			pingCancel()
			log.Fatal("mongo not responding", zap.Error(err))
		}
		pingCancel()
		receipts = mongodb.NewStore(client, cfg.Mongo.Database, log)
		log.Info("connected to mongo", zap.String("database", cfg.Mongo.Database))
	} else {
		receipts = memory.NewStore()
		log.Warn("no mongo.uri configured, receipts are held in memory only")
	}

	rpcClient := rpc.New(cfg.Solana.RPCURL)
	var wsClient *ws.Client
	if cfg.Solana.WSURL != "" {
		var err error
		wsClient, err = ws.Connect(ctx, cfg.Solana.WSURL)
		if err != nil {
			log.Fatal("websocket connect failed", zap.Error(err))
		}
		defer wsClient.Close()
	}

	signer, err := wallet.NewLocalSigner(cfg.Solana.PayerSecret, rpcClient)
	if err != nil {
		log.Fatal("failed to initialize signer", zap.Error(err))
	}

	bus := events.NewBus()
	net := ledger.NewClient(rpcClient, wsClient, signer, log)
	balances := oracle.New(net, time.Duration(cfg.App.PollInterval)*time.Second, bus, log)
	history := mirror.New(receipts, bus, log)
	submit := pipeline.New(net, receipts, balances,
		time.Duration(cfg.App.ConfirmTimeout)*time.Second, bus, log)
	ctrl := session.NewController(balances, history, log)

	var relay *kafka.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		relay = kafka.NewPublisher(cfg.Kafka.Brokers)
		defer relay.Close()
		log.Info("kafka relay enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	}
	go drainEvents(ctx, bus, relay, log)

	if cfg.App.AutoConnect {
		ctrl.OnConnect(signer.Account().String())
	}

	r := gin.Default()
	r.Use(middleware.LocalOnly())
	h := handler.New(ctrl, submit, balances, history, cfg.Solana.Cluster, log)
	h.RegisterRoutes(r)

	addr := fmt.Sprintf(":%d", cfg.App.Port)
	log.Info("server starting", zap.String("addr", addr), zap.String("cluster", cfg.Solana.Cluster))
	if err := r.Run(addr); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

// drainEvents is the bus consumer: every event is logged, settled transfers
// are additionally relayed to Kafka when a relay is configured.
func drainEvents(ctx context.Context, bus *events.Bus, relay *kafka.Publisher, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-bus.Events():
			log.Info("event",
				zap.String("kind", string(e.Kind)),
				zap.String("account", e.Account),
				zap.String("tx", e.TransactionRef),
				zap.String("reason", e.Reason),
			)
			if relay != nil && e.Kind == events.KindTransferSettled {
				pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				if err := relay.Publish(pubCtx, e); err != nil {
					log.Warn("kafka publish failed", zap.Error(err))
				}
				cancel()
			}
		}
	}
}
