package main

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"runtime"
	"sync"
	"time"

	"LecturerVote/config"
	"LecturerVote/control"
	"LecturerVote/db"
	"LecturerVote/graphql"
	"LecturerVote/router"
	"LecturerVote/utils"

	"github.com/gin-gonic/gin"
	"github.com/graphql-go/handler"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func main() {
	// .env 中的 LECTURER_* 变量会覆盖配置文件
	if err := godotenv.Load(); err == nil {
		log.Info("loaded .env")
	}
	conf := config.GetGlobalConf()
	gin.SetMode(conf.ServerConfig.Mode)

	store, locker, err := db.Open(conf)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	var publisher control.Publisher
	if conf.KafkaConfig.Enabled {
		kp, err := utils.NewKafkaPublisher(conf.KafkaConfig.Brokers, conf.KafkaConfig.Topic)
		if err != nil {
			log.Fatalf("failed to create kafka producer: %v", err)
		}
		defer kp.Close()
		publisher = kp
	}

	catalog := control.NewCatalog(store, conf.CatalogConfig.Defaults, conf.CatalogConfig.Reseed)
	if err := catalog.Initialize(context.Background()); err != nil {
		// 课程列表读取时会降级为默认课程，这里不终止
		log.WithError(err).Warn("course catalog initialization incomplete")
	}
	config.Watch(viper.GetViper(), catalog.SetDefaults)

	ledger := control.NewLedger(store, locker, publisher)

	ctx, stop := utils.ShutdownContext(context.Background())
	defer stop()

	var background sync.WaitGroup
	if conf.ArchiveConfig.Enabled {
		gdb, err := db.OpenMySQL(conf.DbConfig)
		if err != nil {
			log.Fatalf("failed to open archive database: %v", err)
		}
		archive := control.NewArchive(gdb, catalog, ledger)
		if err := archive.Migrate(); err != nil {
			log.Fatalf("failed to migrate archive: %v", err)
		}
		background.Add(1)
		go func() {
			defer background.Done()
			utils.SyncLoop(ctx, archive, conf.ArchiveConfig.Interval)
		}()
		if conf.KafkaConfig.Enabled {
			background.Add(1)
			go func() {
				defer background.Done()
				kc := conf.KafkaConfig
				if err := utils.StartKafkaConsumer(ctx, kc.Brokers, kc.GroupID, kc.Topic, archive.Record); err != nil {
					log.WithError(err).Error("kafka consumer stopped")
				}
			}()
		}
	}

	schema, err := graphql.NewGraphQLSchema(catalog, ledger)
	if err != nil {
		log.Fatalf("failed to create new schema, error: %v", err)
	}
	gql := handler.New(&handler.Config{
		Schema: &schema,
		Pretty: true,
	})

	if addr := conf.ServerConfig.PprofAddr; addr != "" {
		go func() {
			runtime.SetBlockProfileRate(1)     // 开启对阻塞操作的跟踪，block
			runtime.SetMutexProfileFraction(1) // 开启对锁调用的跟踪，mutex
			log.Infof("pprof is running on %s", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.WithError(err).Warn("pprof stopped")
			}
		}()
	}

	server := &http.Server{
		Addr:    conf.ServerConfig.Addr,
		Handler: router.NewRouter(catalog, ledger, conf.ServerConfig, gql),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("server shutdown")
		}
	}()

	log.Infof("Now server is running on %s", conf.ServerConfig.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("server closed")
	}
	stop()
	// 等待最后一次归档刷盘
	background.Wait()
	log.Info("bye")
}
